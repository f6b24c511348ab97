package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"tachyon/infra/queue"
)

var (
	ErrMissingArgument = errors.New("logging: too few arguments for format")
	ErrExtraArgument   = errors.New("logging: too many arguments for format")
	ErrQueueFull       = errors.New("logging: queue full")
)

// flusher sleep when the ring is empty
const idleWait = 10 * time.Millisecond

// Logger is an asynchronous line logger for a single producing
// goroutine. '%' is the only placeholder and is replaced by the next
// argument's default format; "%%" prints a percent sign.
type Logger struct {
	name string
	out  *queue.Producer[string]
	in   *queue.Consumer[string]
	sink *zap.Logger

	buf []byte

	stop chan struct{}
	done chan struct{}
}

// New starts a Logger named name that flushes into sink.
func New(name string, sink *zap.Logger, capacity int) *Logger {
	l := newLogger(name, sink, capacity)
	go l.flush()
	return l
}

func newLogger(name string, sink *zap.Logger, capacity int) *Logger {
	q := queue.NewSPSC[string](capacity)
	return &Logger{
		name: name,
		out:  q.Producer(),
		in:   q.Consumer(),
		sink: sink.Named(name),
		buf:  make([]byte, 0, 256),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Log formats the line now and queues it. Argument count mismatches and
// a full ring are fatal.
func (l *Logger) Log(format string, args ...any) {
	l.buf = appendFormat(l.buf[:0], format, args)
	if !l.out.Push(string(l.buf)) {
		panic(errors.Wrapf(ErrQueueFull, "logger %s capacity %d", l.name, l.out.Cap()))
	}
}

// Close flushes what is queued and stops the flusher. The Logger must
// not be used afterwards.
func (l *Logger) Close() {
	close(l.stop)
	<-l.done
	_ = l.sink.Sync()
}

func (l *Logger) flush() {
	defer close(l.done)
	for {
		line, ok := l.in.Pop()
		if ok {
			l.sink.Info(strings.TrimRight(line, "\n"))
			continue
		}
		select {
		case <-l.stop:
			// producer is done; drain the rest
			for line, ok = l.in.Pop(); ok; line, ok = l.in.Pop() {
				l.sink.Info(strings.TrimRight(line, "\n"))
			}
			return
		default:
			time.Sleep(idleWait)
		}
	}
}

func appendFormat(dst []byte, format string, args []any) []byte {
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			dst = append(dst, c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			dst = append(dst, '%')
			i++
			continue
		}
		if next == len(args) {
			panic(errors.Wrapf(ErrMissingArgument, "format %q has more than %d placeholders", format, len(args)))
		}
		dst = fmt.Append(dst, args[next])
		next++
	}
	if next != len(args) {
		panic(errors.Wrapf(ErrExtraArgument, "format %q used %d of %d arguments", format, next, len(args)))
	}
	return dst
}
