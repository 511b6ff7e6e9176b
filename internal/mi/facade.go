package mi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Frame is one stack frame as reported by gdb
type Frame struct {
	Level    int
	Addr     string
	Func     string
	File     string
	FullName string
	Line     int
}

func frameFromTuple(t Tuple) Frame {
	return Frame{
		Level:    t.Int("level"),
		Addr:     t.String("addr"),
		Func:     t.String("func"),
		File:     t.String("file"),
		FullName: t.String("fullname"),
		Line:     t.Int("line"),
	}
}

// Thread is one entry of -thread-info
type Thread struct {
	ID       int
	TargetID string
	Name     string
	State    string
	Frame    Frame
}

// Variable is one entry of -stack-list-variables
type Variable struct {
	Name  string
	Value string
	Type  string
	Arg   bool
}

// VarObj is a gdb variable object
type VarObj struct {
	Name     string
	Exp      string
	Value    string
	Type     string
	NumChild int
}

func varObjFromTuple(t Tuple) VarObj {
	return VarObj{
		Name:     t.String("name"),
		Exp:      t.String("exp"),
		Value:    t.String("value"),
		Type:     t.String("type"),
		NumChild: t.Int("numchild"),
	}
}

// VarChange is one entry of -var-update's changelist
type VarChange struct {
	Name        string
	Value       string
	InScope     string
	TypeChanged bool
	NewType     string
	NewNumChild int
}

// Breakpoint is a breakpoint as reported by -break-insert
type Breakpoint struct {
	Number   string
	File     string
	FullName string
	Line     int
	Func     string
	Addr     string
	Pending  bool
}

// Facade issues one MI command at a time, in arrival order, and decodes the
// replies of the commands the debug session uses.
type Facade struct {
	conn Conn
	log  logr.Logger
	mu   sync.Mutex
}

// NewFacade wraps conn
func NewFacade(conn Conn, log logr.Logger) *Facade {
	return &Facade{conn: conn, log: log}
}

// Events returns the connection's out-of-band record stream
func (f *Facade) Events() <-chan *Record {
	return f.conn.Events()
}

// Close closes the underlying connection
func (f *Facade) Close() error {
	return f.conn.Close()
}

// Send issues a raw command. Commands are serialized: a second caller waits
// until the first has its reply.
func (f *Facade) Send(ctx context.Context, command string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.conn.Send(ctx, command)
	if err != nil {
		f.log.V(1).Info("mi command failed", "command", command, "error", err.Error())
	}
	return rec, err
}

func (f *Facade) sendf(ctx context.Context, format string, args ...any) (*Record, error) {
	return f.Send(ctx, fmt.Sprintf(format, args...))
}

// frameOpts selects a thread and frame for commands that take them. A zero
// thread keeps gdb's current selection.
func frameOpts(thread, level int) string {
	if thread <= 0 {
		return ""
	}
	return fmt.Sprintf(" --thread %d --frame %d", thread, level)
}

func threadOpt(thread int) string {
	if thread <= 0 {
		return ""
	}
	return fmt.Sprintf(" --thread %d", thread)
}

// --- launch sequence ---

// TargetAsyncOn enables asynchronous execution commands
func (f *Facade) TargetAsyncOn(ctx context.Context) error {
	_, err := f.Send(ctx, "-gdb-set target-async on")
	return err
}

// TargetSelectRemote connects to a gdb server on localhost
func (f *Facade) TargetSelectRemote(ctx context.Context, port int) error {
	_, err := f.sendf(ctx, "-target-select extended-remote localhost:%d", port)
	return err
}

// Monitor sends a gdb server monitor command
func (f *Facade) Monitor(ctx context.Context, command string) error {
	return f.Console(ctx, "monitor "+command)
}

// MonitorResetHalt resets the target and halts it at the reset vector
func (f *Facade) MonitorResetHalt(ctx context.Context) error {
	return f.Monitor(ctx, "reset halt")
}

// TargetDownload flashes the loaded executable
func (f *Facade) TargetDownload(ctx context.Context) error {
	_, err := f.Send(ctx, "-target-download")
	return err
}

// EnablePrettyPrinting turns on python pretty printers for varobjs
func (f *Facade) EnablePrettyPrinting(ctx context.Context) error {
	_, err := f.Send(ctx, "-enable-pretty-printing")
	return err
}

// Console runs a CLI command through -interpreter-exec and returns the raw reply
func (f *Facade) Console(ctx context.Context, command string) error {
	_, err := f.ConsoleRecord(ctx, command)
	return err
}

// ConsoleRecord is Console returning the reply record
func (f *Facade) ConsoleRecord(ctx context.Context, command string) (*Record, error) {
	return f.Send(ctx, "-interpreter-exec console "+Quote(command))
}

// --- breakpoints ---

// BreakInsert sets a breakpoint at location (file:line or function). A
// non-empty condition makes it conditional; temporary deletes it on first hit.
func (f *Facade) BreakInsert(ctx context.Context, location, condition string, temporary bool) (Breakpoint, error) {
	var sb strings.Builder
	sb.WriteString("-break-insert -f")
	if temporary {
		sb.WriteString(" -t")
	}
	if condition != "" {
		sb.WriteString(" -c ")
		sb.WriteString(Quote(condition))
	}
	sb.WriteByte(' ')
	sb.WriteString(location)

	rec, err := f.Send(ctx, sb.String())
	if err != nil {
		return Breakpoint{}, err
	}

	bkpt := rec.Results.Tuple("bkpt")
	return Breakpoint{
		Number:   bkpt.String("number"),
		File:     bkpt.String("file"),
		FullName: bkpt.String("fullname"),
		Line:     bkpt.Int("line"),
		Func:     bkpt.String("func"),
		Addr:     bkpt.String("addr"),
		Pending:  bkpt.String("pending") != "",
	}, nil
}

// BreakDelete removes breakpoints by number
func (f *Facade) BreakDelete(ctx context.Context, numbers ...string) error {
	if len(numbers) == 0 {
		return nil
	}
	_, err := f.Send(ctx, "-break-delete "+strings.Join(numbers, " "))
	return err
}

// --- execution ---

// ExecInterrupt interrupts one thread, or the whole target when thread is 0
func (f *Facade) ExecInterrupt(ctx context.Context, thread int) error {
	_, err := f.Send(ctx, "-exec-interrupt"+threadOpt(thread))
	return err
}

// ExecContinue resumes the target
func (f *Facade) ExecContinue(ctx context.Context, thread int) error {
	_, err := f.Send(ctx, "-exec-continue"+threadOpt(thread))
	return err
}

// ExecNext steps over one source line
func (f *Facade) ExecNext(ctx context.Context, thread int) error {
	_, err := f.Send(ctx, "-exec-next"+threadOpt(thread))
	return err
}

// ExecStep steps into one source line
func (f *Facade) ExecStep(ctx context.Context, thread int) error {
	_, err := f.Send(ctx, "-exec-step"+threadOpt(thread))
	return err
}

// ExecFinish runs until the current frame returns
func (f *Facade) ExecFinish(ctx context.Context, thread int) error {
	_, err := f.Send(ctx, "-exec-finish"+threadOpt(thread))
	return err
}

// --- threads and stack ---

// ThreadInfo lists threads and returns the current thread id
func (f *Facade) ThreadInfo(ctx context.Context) ([]Thread, int, error) {
	rec, err := f.Send(ctx, "-thread-info")
	if err != nil {
		return nil, 0, err
	}

	var threads []Thread
	for _, t := range rec.Results.List("threads").Tuples() {
		threads = append(threads, Thread{
			ID:       t.Int("id"),
			TargetID: t.String("target-id"),
			Name:     t.String("name"),
			State:    t.String("state"),
			Frame:    frameFromTuple(t.Tuple("frame")),
		})
	}
	return threads, rec.Results.Int("current-thread-id"), nil
}

// StackListFrames lists frames low..high of a thread; high < 0 lists all
func (f *Facade) StackListFrames(ctx context.Context, thread, low, high int) ([]Frame, error) {
	cmd := "-stack-list-frames" + threadOpt(thread)
	if high >= 0 {
		cmd += fmt.Sprintf(" %d %d", low, high)
	}
	rec, err := f.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	for _, t := range rec.Results.List("stack").Tuples() {
		frames = append(frames, frameFromTuple(t))
	}
	return frames, nil
}

// StackInfoFrame describes one frame of a thread
func (f *Facade) StackInfoFrame(ctx context.Context, thread, level int) (Frame, error) {
	rec, err := f.Send(ctx, "-stack-info-frame"+frameOpts(thread, level))
	if err != nil {
		return Frame{}, err
	}
	return frameFromTuple(rec.Results.Tuple("frame")), nil
}

// StackInfoDepth returns the number of frames on a thread's stack
func (f *Facade) StackInfoDepth(ctx context.Context, thread, level int) (int, error) {
	rec, err := f.Send(ctx, "-stack-info-depth"+frameOpts(thread, level))
	if err != nil {
		return 0, err
	}
	return rec.Results.Int("depth"), nil
}

// StackListVariables lists the arguments and locals of a frame with simple values
func (f *Facade) StackListVariables(ctx context.Context, thread, level int) ([]Variable, error) {
	rec, err := f.Send(ctx, "-stack-list-variables"+frameOpts(thread, level)+" --simple-values")
	if err != nil {
		return nil, err
	}

	var vars []Variable
	for _, t := range rec.Results.List("variables").Tuples() {
		vars = append(vars, Variable{
			Name:  t.String("name"),
			Value: t.String("value"),
			Type:  t.String("type"),
			Arg:   t.String("arg") == "1",
		})
	}
	return vars, nil
}

// --- variable objects ---

// VarCreate creates a varobj for expression in the given frame. An empty
// name lets gdb choose one.
func (f *Facade) VarCreate(ctx context.Context, thread, level int, name, expression string) (VarObj, error) {
	if name == "" {
		name = "-"
	}
	rec, err := f.sendf(ctx, "-var-create%s %s * %s", frameOpts(thread, level), name, Quote(expression))
	if err != nil {
		return VarObj{}, err
	}
	v := varObjFromTuple(rec.Results)
	v.Exp = expression
	return v, nil
}

// VarUpdate refreshes a varobj and returns what changed
func (f *Facade) VarUpdate(ctx context.Context, name string) ([]VarChange, error) {
	rec, err := f.Send(ctx, "-var-update --all-values "+name)
	if err != nil {
		return nil, err
	}

	var changes []VarChange
	for _, t := range rec.Results.List("changelist").Tuples() {
		changes = append(changes, VarChange{
			Name:        t.String("name"),
			Value:       t.String("value"),
			InScope:     t.String("in_scope"),
			TypeChanged: t.String("type_changed") == "true",
			NewType:     t.String("new_type"),
			NewNumChild: t.Int("new_num_children"),
		})
	}
	return changes, nil
}

// VarListChildren lists the children of a varobj with their values
func (f *Facade) VarListChildren(ctx context.Context, name string) ([]VarObj, error) {
	rec, err := f.Send(ctx, "-var-list-children --all-values "+Quote(name))
	if err != nil {
		return nil, err
	}

	var children []VarObj
	for _, t := range rec.Results.List("children").Tuples() {
		children = append(children, varObjFromTuple(t))
	}
	return children, nil
}

// VarEvaluateExpression returns a varobj's current value
func (f *Facade) VarEvaluateExpression(ctx context.Context, name string) (string, error) {
	rec, err := f.Send(ctx, "-var-evaluate-expression "+name)
	if err != nil {
		return "", err
	}
	return rec.Results.String("value"), nil
}

// VarDelete deletes a varobj and its children
func (f *Facade) VarDelete(ctx context.Context, name string) error {
	_, err := f.Send(ctx, "-var-delete "+name)
	return err
}

// DataEvaluateExpression evaluates expression in a frame
func (f *Facade) DataEvaluateExpression(ctx context.Context, thread, level int, expression string) (string, error) {
	rec, err := f.Send(ctx, "-data-evaluate-expression"+frameOpts(thread, level)+" "+Quote(expression))
	if err != nil {
		return "", err
	}
	return rec.Results.String("value"), nil
}

// --- shutdown ---

// TargetDetach detaches from the target, leaving it running
func (f *Facade) TargetDetach(ctx context.Context) error {
	_, err := f.Send(ctx, "-target-detach")
	return err
}

// GdbExit asks gdb to quit
func (f *Facade) GdbExit(ctx context.Context) error {
	_, err := f.Send(ctx, "-gdb-exit")
	return err
}

// ParseThreadID converts a thread-id field, returning 0 for "all" or garbage
func ParseThreadID(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
