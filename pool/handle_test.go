package pool

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestDupHandle_PlainFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "f"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h, err := DupHandle(int(f.Fd()))
	if err != nil {
		t.Fatalf("DupHandle: %v", err)
	}
	if h.Socket {
		t.Error("plain file reported as socket")
	}
	if h.FD == int(f.Fd()) {
		t.Error("DupHandle returned the original descriptor")
	}

	// The duplicate outlives the original.
	f.Close()
	if _, err := unix.Write(h.FD, []byte("x")); err != nil {
		t.Errorf("write through duplicate: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDupHandle_Socket(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Skipf("cannot create socket: %v", err)
	}
	defer unix.Close(fd)

	h, err := DupHandle(fd)
	if err != nil {
		t.Fatalf("DupHandle: %v", err)
	}
	defer h.Close()

	if !h.Socket {
		t.Fatal("socket not recognized")
	}
	if h.Family != unix.AF_INET || h.Type != unix.SOCK_DGRAM {
		t.Errorf("socket triple: family %d type %d proto %d", h.Family, h.Type, h.Protocol)
	}
}
