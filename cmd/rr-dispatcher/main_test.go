package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(command string) string {
	body := fmt.Sprintf(`{"seq":1,"command":%q}`, command)
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestRun_BadArgumentsExitsWithCode2(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{}, strings.NewReader(""), &out)
	assert.Equal(t, exitBadArgs, code)
}

func TestRun_ShutdownOverStdioExitsCleanly(t *testing.T) {
	in := strings.NewReader(frame("shutdown"))
	var out bytes.Buffer

	done := make(chan int, 1)
	go func() { done <- run([]string{"--pool-max=2", "--close-tracking=0", "/tmp/trace"}, in, &out) }()

	select {
	case code := <-done:
		assert.Equal(t, exitClean, code)
		assert.Contains(t, out.String(), `"success":true`)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown to exit")
	}
}

func TestRun_RejectsPoolMaxBelowTwo(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer
	code := run([]string{"--pool-max=1", "/tmp/trace"}, in, &out)
	require.Equal(t, exitBadArgs, code)
}
