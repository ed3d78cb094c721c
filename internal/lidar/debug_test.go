package lidar

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_Streams(t *testing.T) {
	t.Cleanup(func() { SetLogWriters(LogWriters{}) })

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("ops %d", 1)
	Diagf("diag %d", 2)
	Tracef("trace %d", 3)

	if !strings.Contains(ops.String(), "[lidar] ") || !strings.Contains(ops.String(), "ops 1") {
		t.Errorf("ops stream = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "diag 2") || strings.Contains(diag.String(), "ops 1") {
		t.Errorf("diag stream = %q", diag.String())
	}
	if !strings.Contains(trace.String(), "trace 3") {
		t.Errorf("trace stream = %q", trace.String())
	}
}

func TestSetLogWriters_NilDisables(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})
	SetLogWriters(LogWriters{})

	// Should not panic or write.
	Opsf("dropped")
	Diagf("dropped")
	Tracef("dropped")

	if ops.Len() != 0 {
		t.Errorf("ops stream after disabling = %q, want empty", ops.String())
	}
}
