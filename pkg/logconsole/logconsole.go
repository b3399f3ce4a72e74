package logconsole

import (
	"fmt"
	"sync"

	"github.com/the-dev-tools/apirun/pkg/idwrap"
)

// LogLevel represents the severity level of a log message
type LogLevel int32

const (
	LogLevelUnspecified LogLevel = 0
	LogLevelWarning     LogLevel = 1
	LogLevelError       LogLevel = 2
)

type LogMessage struct {
	LogID idwrap.IDWrap
	Value string
	Level LogLevel
}

// LogChanMap fans hook console output out to per-execution channels.
// Consumers register a channel before starting an execution and drain it
// while the execution runs.
type LogChanMap struct {
	mt      *sync.Mutex
	chanMap map[idwrap.IDWrap]chan LogMessage
}

func NewLogChanMap() LogChanMap {
	return LogChanMap{
		chanMap: make(map[idwrap.IDWrap]chan LogMessage, 10),
		mt:      &sync.Mutex{},
	}
}

const bufferSize = 10

func (l *LogChanMap) AddLogChannel(execID idwrap.IDWrap) chan LogMessage {
	lm := make(chan LogMessage, bufferSize)
	l.mt.Lock()
	defer l.mt.Unlock()
	l.chanMap[execID] = lm
	return lm
}

func (l *LogChanMap) DeleteLogChannel(execID idwrap.IDWrap) {
	l.mt.Lock()
	defer l.mt.Unlock()
	ch, ok := l.chanMap[execID]
	if ok {
		close(ch)
		delete(l.chanMap, execID)
	}
}

// SendMsgToExecution drops the message when the buffer is full so a slow
// consumer can never stall the pipeline.
func (l *LogChanMap) SendMsgToExecution(execID idwrap.IDWrap, value string, level LogLevel) error {
	l.mt.Lock()
	defer l.mt.Unlock()
	ch, ok := l.chanMap[execID]
	if !ok {
		return fmt.Errorf("execution's log channel not found")
	}
	select {
	case ch <- LogMessage{LogID: idwrap.NewNow(), Value: value, Level: level}:
	default:
	}
	return nil
}
