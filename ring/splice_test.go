//go:build linux

package ring

import (
	"io"
	"os"
	"testing"
)

// TestSpliceIntegrity is scenario S3: a 255-byte source file containing
// byte i at offset i is spliced source -> pipe -> ring -> pipe ->
// destination file; the destination must reproduce the source exactly.
func TestSpliceIntegrity(t *testing.T) {
	dir := t.TempDir()

	srcPath := dir + "/src.bin"
	src := make([]byte, 255)
	for i := range src {
		src[i] = byte(i)
	}
	if err := os.WriteFile(srcPath, src, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewInlineMapped(255+headerSize, 1, dir)
	if err != nil {
		t.Fatalf("NewInlineMapped: %v", err)
	}
	defer r.Free()

	pos, err := r.ReserveTx(1)
	if err != nil {
		t.Fatal(err)
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		t.Fatal(err)
	}
	defer srcFile.Close()

	rIn, wIn, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rIn.Close()
	defer wIn.Close()

	go func() {
		io.Copy(wIn, srcFile)
		wIn.Close()
	}()

	n, err := r.SpliceFromPipe(int(rIn.Fd()), pos, 0, uint32(len(src)))
	if err != nil {
		t.Fatalf("SpliceFromPipe: %v", err)
	}
	if n != uint32(len(src)) {
		t.Fatalf("spliced %d bytes, want %d", n, len(src))
	}
	if got := r.SpliceSz(pos, 0); got != n {
		t.Fatalf("SpliceSz = %d, want %d", got, n)
	}
	r.ReleaseTx(1)

	rpos, err := r.ReserveRx(1)
	if err != nil {
		t.Fatal(err)
	}

	rOut, wOut, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rOut.Close()
	defer wOut.Close()

	dstPath := dir + "/dst.bin"
	dstFile, err := os.Create(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	defer dstFile.Close()

	done := make(chan struct{})
	go func() {
		io.Copy(dstFile, rOut)
		close(done)
	}()

	m, err := r.SpliceToPipe(rpos, 0, int(wOut.Fd()))
	if err != nil {
		t.Fatalf("SpliceToPipe: %v", err)
	}
	wOut.Close()
	<-done
	if m != n {
		t.Fatalf("SpliceToPipe transferred %d bytes, want %d", m, n)
	}
	r.ReleaseRx(1)

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(src) {
		t.Fatalf("dst length = %d, want %d", len(got), len(src))
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, got[i], src[i])
		}
	}
}

// TestPointerRingFileCopy is scenario S4: a pointer ring splices an input
// file through it into an output file with identical bytes.
func TestPointerRingFileCopy(t *testing.T) {
	dir := t.TempDir()

	srcPath := dir + "/input.bin"
	src := make([]byte, 8192*3+17)
	for i := range src {
		src[i] = byte(i * 7)
	}
	if err := os.WriteFile(srcPath, src, 0o644); err != nil {
		t.Fatal(err)
	}

	const blockSize = 8192
	blockCount := uint32(len(src))/blockSize + 2

	r, err := NewPointer(blockSize, blockCount, dir)
	if err != nil {
		t.Fatalf("NewPointer: %v", err)
	}
	defer r.Free()

	srcFile, err := os.Open(srcPath)
	if err != nil {
		t.Fatal(err)
	}
	defer srcFile.Close()

	dstPath := dir + "/output.bin"
	dstFile, err := os.Create(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	defer dstFile.Close()

	var szSrc, szSent uint64
	remaining := len(src)
	for remaining > 0 {
		pos, err := r.ReserveTx(1)
		if err != nil {
			continue
		}

		rIn, wIn, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		chunk := blockSize
		if chunk > remaining {
			chunk = remaining
		}
		go func(n int) {
			io.CopyN(wIn, srcFile, int64(n))
			wIn.Close()
		}(chunk)

		n, err := r.SpliceFromPipe(int(rIn.Fd()), pos, 0, uint32(chunk))
		rIn.Close()
		wIn.Close()
		if err != nil {
			t.Fatalf("SpliceFromPipe: %v", err)
		}
		r.ReleaseTx(1)
		szSrc += uint64(n)
		remaining -= int(n)

		rpos, err := r.ReserveRx(1)
		if err != nil {
			t.Fatal(err)
		}
		rOut, wOut, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan struct{})
		go func() {
			io.Copy(dstFile, rOut)
			close(done)
		}()
		m, err := r.SpliceToPipe(rpos, 0, int(wOut.Fd()))
		wOut.Close()
		<-done
		rOut.Close()
		if err != nil {
			t.Fatalf("SpliceToPipe: %v", err)
		}
		r.ReleaseRx(1)
		szSent += uint64(m)
	}

	if szSent != szSrc {
		t.Fatalf("sz_sent = %d, want sz_src = %d", szSent, szSrc)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(src) {
		t.Fatalf("output length = %d, want %d", len(got), len(src))
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("output[%d] = %d, want %d", i, got[i], src[i])
		}
	}
}
