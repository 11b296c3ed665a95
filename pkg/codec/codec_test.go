package codec_test

import (
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/voxlink/pkg/codec"
)

func TestCodecError_Unwrap(t *testing.T) {
	t.Parallel()

	err := error(&codec.CodecError{Codec: "opus", Op: "encode", Err: io.ErrShortBuffer})

	if !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("errors.Is(err, io.ErrShortBuffer) = false")
	}
	var ce *codec.CodecError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As failed")
	}
	if ce.Op != "encode" {
		t.Errorf("Op = %q, want encode", ce.Op)
	}
	if got, want := err.Error(), "codec: opus encode: short buffer"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConfig_Channels(t *testing.T) {
	t.Parallel()

	if got := (codec.Config{Stereo: true}).Channels(); got != 2 {
		t.Errorf("stereo Channels = %d, want 2", got)
	}
	if got := (codec.Config{}).Channels(); got != 1 {
		t.Errorf("mono Channels = %d, want 1", got)
	}
}
