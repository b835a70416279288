package ftpserver

import (
	"context"
	"time"

	"github.com/rclone/multiserve/internal/logx"
)

// Task runs one worker-routed FTP command (see workerCommands) on the
// dispatcher instead of the connection's read goroutine, the Go analogue
// of LineServerChannel wrapping thread_commands in a Task before calling
// addTask.
type Task struct {
	session *Session
	verb    string
	args    string

	startTime time.Time
}

// NewTask builds a Task for one already-authenticated (or exempt)
// command.
func NewTask(session *Session, verb, args string) *Task {
	return &Task{session: session, verb: verb, args: args}
}

func (t *Task) Defer() { t.startTime = time.Now() }

func (t *Task) Service() {
	defer t.session.cb.EndTask(false)
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf(logx.S("ftpserver"), "%s: command panicked: %v", t.verb, r)
			t.session.reply(replyInternalError, r)
		}
	}()
	t.session.dispatch(context.Background(), t.verb, t.args)
}

// Cancel runs when the dispatcher drops the task unserviced (shutdown);
// it replies with an internal error and ends the task with close set, so
// the channel is closed once that reply has been written.
func (t *Task) Cancel() {
	t.session.reply(replyInternalError, "server shutting down")
	t.session.cb.EndTask(true)
}
