package dap

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/go-dap"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
)

func (s *Session) onStackTraceRequest(request *dap.StackTraceRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	args := request.Arguments
	s.mu.Lock()
	s.globalFrame = FrameReference{ThreadID: args.ThreadId, Level: 0}
	s.mu.Unlock()

	low, high := args.StartFrame, -1
	if args.Levels > 0 {
		high = low + args.Levels - 1
	}
	frames, err := f.StackListFrames(s.ctx, args.ThreadId, low, high)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.StackTraceResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.StackFrames = make([]dap.StackFrame, 0, len(frames))
	for _, fr := range frames {
		id, err := s.handles.newFrame(FrameReference{ThreadID: args.ThreadId, Level: fr.Level})
		if err != nil {
			s.sendErrorResponse(request.Request, err)
			return
		}
		response.Body.StackFrames = append(response.Body.StackFrames, stackFrame(id, fr))
	}
	response.Body.TotalFrames = low + len(frames)
	s.send(response)
}

func stackFrame(id int, fr mi.Frame) dap.StackFrame {
	sf := dap.StackFrame{
		Id:                          id,
		Name:                        fr.Func,
		Line:                        fr.Line,
		InstructionPointerReference: fr.Addr,
	}
	if sf.Name == "" {
		sf.Name = "??"
	}
	if fr.File != "" || fr.FullName != "" {
		sf.Source = &dap.Source{Name: baseName(fr.File), Path: fr.FullName}
		if sf.Source.Path == "" {
			sf.Source.Path = fr.File
		}
	} else {
		sf.PresentationHint = "subtle"
	}
	return sf
}

func (s *Session) onScopesRequest(request *dap.ScopesRequest) {
	frameID := request.Arguments.FrameId
	if _, ok := s.handles.frame(frameID); !ok {
		s.sendErrorResponse(request.Request, dbgerrors.InvalidHandle("frame", frameID))
		return
	}

	response := &dap.ScopesResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Scopes = []dap.Scope{
		{Name: "Local", VariablesReference: s.handles.localsHandle(frameID)},
		{Name: "Global", VariablesReference: GlobalHandle},
		{Name: "Static", VariablesReference: s.handles.staticHandle(frameID)},
	}
	s.send(response)
}

func (s *Session) onVariablesRequest(request *dap.VariablesRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	ref := request.Arguments.VariablesReference
	h, ok := s.handles.lookup(ref)
	if !ok {
		s.sendErrorResponse(request.Request, dbgerrors.InvalidHandle("variablesReference", ref))
		return
	}

	var vars []dap.Variable
	switch h.Kind {
	case HandleGlobal:
		vars, err = s.globalVariables(s.ctx, f)
	case HandleStatic:
		vars, err = s.staticVariables(s.ctx, f, h.Frame)
	case HandleFrame:
		vars, err = s.frameVariables(s.ctx, f, h.Frame)
	case HandleObject:
		vars, err = s.childVariables(s.ctx, f, h)
	}
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.VariablesResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Variables = vars
	if response.Body.Variables == nil {
		response.Body.Variables = []dap.Variable{}
	}
	s.send(response)
}

// globalVariables binds every global data symbol in the reserved global
// frame. Before the symbol table has loaded the scope is empty.
func (s *Session) globalVariables(ctx context.Context, f *mi.Facade) ([]dap.Variable, error) {
	table := s.symbols.Load()
	if table.Len() == 0 {
		return nil, nil
	}

	s.mu.Lock()
	frame := s.globalFrame
	s.mu.Unlock()

	depth, err := f.StackInfoDepth(ctx, frame.ThreadID, frame.Level)
	if err != nil {
		return nil, err
	}

	var vars []dap.Variable
	for _, sym := range table.GlobalVariables() {
		key := bindingKey{Frame: frame.Level, Thread: frame.ThreadID, Depth: depth, Name: sym.Name}
		vars = append(vars, s.symbolVariable(ctx, f, key, sym.Name, sym.Name, frame))
	}
	return vars, nil
}

// staticVariables binds the file-static symbols of the frame's source file
func (s *Session) staticVariables(ctx context.Context, f *mi.Facade, frame FrameReference) ([]dap.Variable, error) {
	table := s.symbols.Load()
	if table.Len() == 0 {
		return nil, nil
	}

	info, err := f.StackInfoFrame(ctx, frame.ThreadID, frame.Level)
	if err != nil {
		return nil, err
	}
	statics := table.StaticVariables(info.FullName)
	if len(statics) == 0 {
		statics = table.StaticVariables(info.File)
	}
	if len(statics) == 0 {
		return nil, nil
	}

	depth, err := f.StackInfoDepth(ctx, frame.ThreadID, frame.Level)
	if err != nil {
		return nil, err
	}

	vars := make([]dap.Variable, 0, len(statics))
	for _, sym := range statics {
		key := bindingKey{Frame: frame.Level, Thread: frame.ThreadID, Depth: depth, Name: staticKey(sym)}
		expr := "'" + baseName(sym.File) + "'::" + sym.Name
		vars = append(vars, s.symbolVariable(ctx, f, key, sym.Name, expr, frame))
	}
	return vars, nil
}

func staticKey(sym symbols.Symbol) string {
	return sym.File + "::" + sym.Name
}

// frameVariables lists a frame's arguments and locals. Aggregates get a
// varobj so they can be expanded.
func (s *Session) frameVariables(ctx context.Context, f *mi.Facade, frame FrameReference) ([]dap.Variable, error) {
	locals, err := f.StackListVariables(ctx, frame.ThreadID, frame.Level)
	if err != nil {
		return nil, err
	}

	depth := -1
	vars := make([]dap.Variable, 0, len(locals))
	for _, v := range locals {
		if v.Value != "" {
			vars = append(vars, dap.Variable{Name: v.Name, Value: v.Value, Type: v.Type, EvaluateName: v.Name})
			continue
		}
		if depth < 0 {
			if depth, err = f.StackInfoDepth(ctx, frame.ThreadID, frame.Level); err != nil {
				return nil, err
			}
		}
		key := bindingKey{Frame: frame.Level, Thread: frame.ThreadID, Depth: depth, Name: "local:" + v.Name}
		vars = append(vars, s.symbolVariable(ctx, f, key, v.Name, v.Name, frame))
	}
	return vars, nil
}

// childVariables expands a varobj one level
func (s *Session) childVariables(ctx context.Context, f *mi.Facade, h Handle) ([]dap.Variable, error) {
	children, err := f.VarListChildren(ctx, h.Object)
	if err != nil {
		return nil, err
	}

	vars := make([]dap.Variable, 0, len(children))
	for _, c := range children {
		v := dap.Variable{Name: c.Exp, Value: c.Value, Type: c.Type}
		if c.NumChild > 0 {
			v.VariablesReference = s.handles.objectHandle(c.Name, h.Frame)
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// symbolVariable resolves expression through the varobj cache. A binding
// gdb refuses is shown with gdb's message as its value.
func (s *Session) symbolVariable(ctx context.Context, f *mi.Facade, key bindingKey, name, expression string, frame FrameReference) dap.Variable {
	b, err := s.varobjs.resolve(ctx, f, key, expression)
	if err != nil {
		return dap.Variable{Name: name, Value: "<" + dbgerrors.Message(err) + ">", EvaluateName: expression}
	}
	v := dap.Variable{Name: name, Value: b.value, Type: b.typ, EvaluateName: expression}
	if b.numChild > 0 {
		v.VariablesReference = s.handles.objectHandle(b.varobj, frame)
	}
	return v
}

func (s *Session) onEvaluateRequest(request *dap.EvaluateRequest) {
	args := request.Arguments
	if args.Context == "repl" {
		s.evaluateRepl(request)
		return
	}

	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	var frame FrameReference
	if args.FrameId != 0 {
		ref, ok := s.handles.frame(args.FrameId)
		if !ok {
			s.sendErrorResponse(request.Request, dbgerrors.InvalidHandle("frame", args.FrameId))
			return
		}
		frame = ref
	}

	depth, err := f.StackInfoDepth(s.ctx, frame.ThreadID, frame.Level)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	key := bindingKey{Frame: frame.Level, Thread: frame.ThreadID, Depth: depth, Name: "watch:" + args.Expression}
	b, err := s.varobjs.resolve(s.ctx, f, key, args.Expression)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.EvaluateResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Result = b.value
	response.Body.Type = b.typ
	if b.numChild > 0 {
		response.Body.VariablesReference = s.handles.objectHandle(b.varobj, frame)
	}
	s.send(response)
}

// evaluateRepl passes debug console input to gdb. Input starting with '-'
// is an MI command; anything else runs as a CLI command. The result record
// is returned as is and CLI output arrives as output events.
func (s *Session) evaluateRepl(request *dap.EvaluateRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	command := request.Arguments.Expression
	if !strings.HasPrefix(command, "-") {
		command = "-interpreter-exec console " + mi.Quote(command)
	}
	rec, err := f.Send(s.ctx, command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.EvaluateResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Result = stringifyResults(rec)
	s.send(response)
}

func stringifyResults(rec *mi.Record) string {
	if rec == nil || len(rec.Results) == 0 {
		return ""
	}
	data, err := json.Marshal(rec.Results)
	if err != nil {
		return ""
	}
	return string(data)
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
