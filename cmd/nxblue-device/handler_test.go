package main

import (
	"testing"

	"github.com/nxblue/nxblue-go/pkg/command"
)

func TestBrickHandle(t *testing.T) {
	b := newBrick("Ultron")

	tests := []struct {
		in   command.Command
		want string
	}{
		{command.New("PING"), "PONG"},
		{command.New("NAME"), "NAME;Ultron"},
		{command.New("ECHO", "a", "b;c"), `ECHO;a;b\;c`},
		{command.New("MOVE", "50", "-50"), "OK;MOVE"},
		{command.New("STATUS"), "STATUS;50;-50"},
		{command.New("STOP"), "OK;STOP"},
		{command.New("STATUS"), "STATUS;0;0"},
		{command.New("MOVE", "101", "0"), "ERR;MOVE;value out of range"},
		{command.New("MOVE", "1"), "ERR;MOVE;expected 2 parameters"},
		{command.New("BEEP", "440"), "OK;BEEP"},
		{command.New("BEEP", "loud"), "ERR;BEEP;expected frequency in Hz"},
		{command.New("FLY"), "ERR;FLY;unknown command"},
	}

	for _, tt := range tests {
		got := b.handle(tt.in).String()
		if got != tt.want {
			t.Errorf("handle(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
