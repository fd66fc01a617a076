package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestPlainFormatter(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		name string
		data logrus.Fields
		msg  string
		want string
	}{
		{
			name: "component and fields",
			data: logrus.Fields{"component": "gate", "tool": "shell", "result": "denied"},
			msg:  "decision",
			want: "[2025-01-02T03:04:05Z] [INFO] [gate] decision result=denied tool=shell\n",
		},
		{
			name: "bare",
			data: logrus.Fields{},
			msg:  "hello",
			want: "[2025-01-02T03:04:05Z] [INFO] hello\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := &logrus.Entry{
				Logger:  logrus.New(),
				Time:    ts,
				Level:   logrus.InfoLevel,
				Message: tc.msg,
				Data:    tc.data,
			}
			out, err := (PlainFormatter{}).Format(entry)
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if string(out) != tc.want {
				t.Fatalf("want %q, got %q", tc.want, string(out))
			}
		})
	}
}

func TestNamedWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(logrus.InfoLevel)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(logrus.WarnLevel)
	})

	Named("policy").Info("loaded")
	if !strings.Contains(buf.String(), "[policy] loaded") {
		t.Errorf("unexpected log line: %q", buf.String())
	}
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	if _, err := Configure(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "toolgate.log")
	closer, err := Configure(Options{File: path})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() {
		closer.Close()
		SetOutput(os.Stderr)
	})
	Named("test").Warn("written")
}
