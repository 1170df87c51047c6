package cli

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "exporting")

	progress.Start(100)
	progress.Add(50)
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "exporting [") {
		t.Errorf("missing label: %q", output)
	}
	if !strings.Contains(output, " 50.0% (50/100)") || !strings.Contains(output, "100.0% (100/100)") {
		t.Errorf("missing steps: %q", output)
	}
}

func TestSimpleProgressClampsOvershoot(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")

	progress.Start(10)
	progress.Add(25)
	if !strings.Contains(buf.String(), "(10/10)") {
		t.Errorf("overshoot not clamped: %q", buf.String())
	}
}

func TestSimpleProgressZeroTotal(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")

	progress.Start(0)
	progress.Add(3)
	progress.Finish()

	if strings.TrimSpace(buf.String()) != "" {
		t.Errorf("zero total drew a bar: %q", buf.String())
	}
}

func TestSimpleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")

	progress.Start(100)
	progress.Error(fmt.Errorf("test error"))

	if !strings.Contains(buf.String(), "Error: test error") {
		t.Errorf("error output = %q", buf.String())
	}
}

func TestSimpleProgressConcurrent(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "x")
	progress.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				progress.Add(1)
			}
		}()
	}
	wg.Wait()
	progress.Finish()

	if !strings.Contains(buf.String(), "(1000/1000)") {
		t.Error("concurrent adds lost")
	}
}
