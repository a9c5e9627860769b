package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/court-autobook/internal/auth"
	"github.com/example/court-autobook/internal/domain/reservation"
)

type statusReplies []reservation.RawDocument

func (s *statusReplies) Status(context.Context, string) (reservation.RawDocument, error) {
	doc := (*s)[0]
	if len(*s) > 1 {
		*s = (*s)[1:]
	}
	return doc, nil
}

func TestParseDurations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "90", want: []int{90}},
		{in: "60, 90,120", want: []int{60, 90, 120}},
		{in: "", want: nil},
		{in: "60,,90", want: []int{60, 90}},
		{in: "sixty", wantErr: true},
		{in: "0", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseDurations(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestKeysPrintsThreeExports(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"keys"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[2], "export SECRET_KEY=") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetIn(strings.NewReader("hunter2\n"))
	root.SetArgs([]string{"operator", "hash-password"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(out.String())
	hash := strings.TrimSuffix(strings.TrimPrefix(line, "export CONTROL_PASSWORD_HASH='"), "'")
	if hash == line || !auth.CheckPassword(hash, "hunter2") {
		t.Fatalf("output = %q", line)
	}
}

func TestWatchStatusEndsWithoutStatusField(t *testing.T) {
	t.Parallel()
	src := &statusReplies{
		map[string]any{"status": "Pending"},
		map[string]any{"guid": "g", "amount": 20},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out bytes.Buffer
	st := watchStatus(ctx, src, "g", time.Millisecond, &out)
	if ctx.Err() != nil {
		t.Fatal("watch did not finish on its own")
	}
	if st.Queries != 2 || st.LastStatus != reservation.PollTerminal || st.Status != "unknown" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 2 {
		t.Fatalf("printed %d lines:\n%s", lines, out.String())
	}
}
