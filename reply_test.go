package ftpclient

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadReply_SingleLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "simple success",
			input:    "220 Welcome\r\n",
			wantCode: 220,
			wantMsg:  "Welcome",
		},
		{
			name:     "error response",
			input:    "550 File not found\r\n",
			wantCode: 550,
			wantMsg:  "File not found",
		},
		{
			name:     "code with no message",
			input:    "200 \r\n",
			wantCode: 200,
			wantMsg:  "",
		},
		{
			name:     "bare code",
			input:    "200\r\n",
			wantCode: 200,
			wantMsg:  "",
		},
		{
			name:     "LF only",
			input:    "221 Bye\n",
			wantCode: 221,
			wantMsg:  "Bye",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("readReply() error = %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("readReply() code = %v, want %v", resp.Code, tt.wantCode)
			}
			if resp.Message != tt.wantMsg {
				t.Errorf("readReply() message = %q, want %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestReadReply_MultiLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		input     string
		wantCode  int
		wantMsg   string
		wantLines int
	}{
		{
			name: "multi-line response",
			input: "220-Welcome to FTP\r\n" +
				"220-This is line 2\r\n" +
				"220 Ready\r\n",
			wantCode:  220,
			wantMsg:   "Welcome to FTP\nThis is line 2\nReady",
			wantLines: 3,
		},
		{
			name: "features with indented lines",
			input: "211-Features:\r\n" +
				" PASV\r\n" +
				" SIZE\r\n" +
				"211 End\r\n",
			wantCode:  211,
			wantMsg:   "Features:\n PASV\n SIZE\nEnd",
			wantLines: 4,
		},
		{
			name: "inner line with other code",
			input: "230-Welcome\r\n" +
				"220 not the end\r\n" +
				"230 Logged in\r\n",
			wantCode:  230,
			wantMsg:   "Welcome\n220 not the end\nLogged in",
			wantLines: 3,
		},
		{
			name: "inner line starting with code and no separator",
			input: "230-Welcome\r\n" +
				"230x still inside\r\n" +
				"230 Done\r\n",
			wantCode:  230,
			wantMsg:   "Welcome\n230x still inside\nDone",
			wantLines: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("readReply() error = %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("readReply() code = %v, want %v", resp.Code, tt.wantCode)
			}
			if resp.Message != tt.wantMsg {
				t.Errorf("readReply() message = %q, want %q", resp.Message, tt.wantMsg)
			}
			if len(resp.Lines) != tt.wantLines {
				t.Errorf("readReply() lines = %d, want %d", len(resp.Lines), tt.wantLines)
			}
		})
	}
}

func TestReadReply_Sequence(t *testing.T) {
	t.Parallel()
	r := bufio.NewReader(strings.NewReader("150 Opening\r\n226-Done\r\n226 Bye\r\n"))

	first, err := readReply(r)
	if err != nil || first.Code != 150 {
		t.Fatalf("first reply = %v, %v", first, err)
	}
	second, err := readReply(r)
	if err != nil || second.Code != 226 {
		t.Fatalf("second reply = %v, %v", second, err)
	}
	if second.String() != "226-Done\n226 Bye" {
		t.Errorf("String() = %q", second.String())
	}
}

func TestReadReply_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"empty stream", ""},
		{"not a code", "abc Hello\r\n"},
		{"short line", "22\r\n"},
		{"code below 100", "099 Odd\r\n"},
		{"bad separator", "220xWelcome\r\n"},
		{"truncated multi-line", "220-Welcome\r\n220-more\r\n"},
		{"truncated line", "220 Welc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err == nil {
				t.Fatalf("readReply() = %+v, want error", resp)
			}
			if resp != nil {
				t.Errorf("partial reply returned: %+v", resp)
			}
			if !errors.Is(err, ErrMalformedReply) {
				t.Errorf("readReply() error = %v, want ErrMalformedReply", err)
			}
		})
	}
}

func TestReadReply_TruncatedIsUnexpectedEOF(t *testing.T) {
	t.Parallel()
	_, err := readReply(bufio.NewReader(strings.NewReader("211-Features:\r\n PASV\r\n")))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readReply() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReply_Classes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code               int
		c1, c2, c3, c4, c5 bool
	}{
		{150, true, false, false, false, false},
		{226, false, true, false, false, false},
		{350, false, false, true, false, false},
		{421, false, false, false, true, false},
		{550, false, false, false, false, true},
	}
	for _, tt := range tests {
		r := &Reply{Code: tt.code}
		got := [5]bool{r.Is1xx(), r.Is2xx(), r.Is3xx(), r.Is4xx(), r.Is5xx()}
		want := [5]bool{tt.c1, tt.c2, tt.c3, tt.c4, tt.c5}
		if got != want {
			t.Errorf("code %d: classes = %v, want %v", tt.code, got, want)
		}
	}
}

func FuzzReadReply(f *testing.F) {
	f.Add("220 Welcome\r\n")
	f.Add("211-Features:\r\n PASV\r\n211 End\r\n")
	f.Add("230-\r\n230 \r\n")

	f.Fuzz(func(t *testing.T, s string) {
		r, err := readReply(bufio.NewReader(strings.NewReader(s)))
		if err == nil && (r.Code < 100 || r.Code > 999) {
			t.Fatalf("reply code %d out of range", r.Code)
		}
	})
}
