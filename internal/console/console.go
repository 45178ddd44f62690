// Package console 命令行下的通知与确认
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// Notifier 将操作结果打印到终端
type Notifier struct {
	out io.Writer
	log logrus.FieldLogger
	mu  sync.Mutex
}

// NewNotifier 创建终端通知
func NewNotifier(out io.Writer, log logrus.FieldLogger) *Notifier {
	return &Notifier{out: out, log: log}
}

// Notify implements workflow.Notifier
func (n *Notifier) Notify(note workflow.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if note.Success {
		fmt.Fprintf(n.out, "✔ %s\n", note.Message)
		return
	}
	switch note.Error {
	case workflow.KindDeclined:
		fmt.Fprintln(n.out, "Cancelled.")
		return
	case workflow.KindAlreadyProcessing:
		fmt.Fprintf(n.out, "… %s\n", note.Message)
		return
	}
	fmt.Fprintf(n.out, "✘ %s\n", note.Message)
	fields := make([]string, 0, len(note.Fields))
	for f := range note.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range note.Fields[f] {
			fmt.Fprintf(n.out, "  %s: %s\n", f, msg)
		}
	}
	if n.log != nil {
		n.log.WithFields(logrus.Fields{"action": note.Action, "ids": note.IDs, "error_kind": note.Error}).Debug(note.Message)
	}
}

// Confirmer 从输入读取 y/N
type Confirmer struct {
	in     *bufio.Reader
	out    io.Writer
	assume bool
	mu     sync.Mutex
}

// NewConfirmer 创建终端确认; assumeYes 为 true 时不询问
func NewConfirmer(in io.Reader, out io.Writer, assumeYes bool) *Confirmer {
	return &Confirmer{in: bufio.NewReader(in), out: out, assume: assumeYes}
}

// Confirm implements workflow.Confirmer
func (c *Confirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if c.assume {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	answer := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			errCh <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errCh:
		if err == io.EOF {
			return false, nil
		}
		return false, err
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
