package config

import (
	"strings"
	"testing"
)

func TestLoadValid(t *testing.T) {
	src := "" +
		"/usr/local/bin/echo-svc  tcp  7    nowait\n" +
		"\n" +
		"   \n" +
		"./udp-daytime        udp  13   wait\n"

	list, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(list))
	}

	if list[0].Name != "echo-svc" || list[0].Protocol != TCP || list[0].Mode != NoWait || list[0].Port != 7 {
		t.Errorf("descriptor 0 = %+v", list[0])
	}
	if list[1].Name != "udp-daytime" || list[1].Protocol != UDP || list[1].Mode != Wait || list[1].Port != 13 {
		t.Errorf("descriptor 1 = %+v", list[1])
	}
}

func TestLoadNameWithoutSlash(t *testing.T) {
	list, err := Load(strings.NewReader("echo tcp 7 nowait\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list[0].Name != "echo" {
		t.Errorf("Name = %q, want %q", list[0].Name, "echo")
	}
}

func TestLoadIdempotent(t *testing.T) {
	src := "/bin/echo-svc tcp 17001 nowait\n/bin/udp-echo udp 17003 wait\n"
	a, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	b, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if *a[i] != *b[i] {
			t.Errorf("descriptor %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	_, err := Load(strings.NewReader("/x tcp 70000 wait\n"))
	if err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("got %T, want *FormatError", err)
	}
}

func TestLoadRejectsBadProtocol(t *testing.T) {
	_, err := Load(strings.NewReader("/x sctp 7 wait\n"))
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("got %T, want *FormatError", err)
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	_, err := Load(strings.NewReader("/x tcp 7 maybe\n"))
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("got %T, want *FormatError", err)
	}
}

func TestLoadRejectsTooFewFields(t *testing.T) {
	_, err := Load(strings.NewReader("/x tcp 7\n"))
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("got %T, want *FormatError", err)
	}
}

func TestLoadRejectsDuplicateKey(t *testing.T) {
	src := "/bin/a tcp 7 nowait\n/bin/b tcp 7 wait\n"
	_, err := Load(strings.NewReader(src))
	if _, ok := err.(*FormatError); !ok {
		t.Errorf("got %T, want *FormatError", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/path/to/conf.txt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, ok := err.(*MissingError); !ok {
		t.Errorf("got %T, want *MissingError", err)
	}
}
