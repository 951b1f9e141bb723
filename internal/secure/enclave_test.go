package secure

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewSecureBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name: "creates enclave from bytes",
			data: []byte("my-secret-api-key"),
		},
		{
			name: "handles binary data",
			data: []byte{0x00, 0xFF, 0x10, 0x20},
		},
		{
			name:    "rejects empty data",
			data:    []byte{},
			wantErr: ErrEmptySecret,
		},
		{
			name:    "rejects nil data",
			data:    nil,
			wantErr: ErrEmptySecret,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf, err := NewSecureBuffer(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewSecureBuffer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSecureBuffer() unexpected error = %v", err)
			}
			if buf == nil {
				t.Fatal("NewSecureBuffer() returned nil buffer")
			}
			buf.Destroy()
		})
	}
}

func TestNewSecureBuffer_WipesSource(t *testing.T) {
	t.Parallel()

	secret := []byte("api-key-to-wipe")
	buf, err := NewSecureBuffer(secret)
	if err != nil {
		t.Fatalf("NewSecureBuffer() error = %v", err)
	}
	defer buf.Destroy()

	if !bytes.Equal(secret, make([]byte, len(secret))) {
		t.Errorf("source slice not wiped: %v", secret)
	}
	if buf.Size() != len("api-key-to-wipe") {
		t.Errorf("Size() = %d, want %d", buf.Size(), len("api-key-to-wipe"))
	}
}

func TestSecureBuffer_Open(t *testing.T) {
	t.Parallel()

	// memguard zeroes the source buffer, so keep a copy for comparison
	secretStr := "super-secret-data"
	secret := []byte(secretStr)
	expected := []byte(secretStr)

	buf, err := NewSecureBuffer(secret)
	if err != nil {
		t.Fatalf("NewSecureBuffer() error = %v", err)
	}
	defer buf.Destroy()

	locked, err := buf.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer locked.Destroy()

	if got := locked.Bytes(); !bytes.Equal(got, expected) {
		t.Errorf("Open() returned %v, want %v", got, expected)
	}
}

func TestSecureBuffer_MultipleOpens(t *testing.T) {
	t.Parallel()

	secretStr := "test-secret"
	buf, err := NewSecureBuffer([]byte(secretStr))
	if err != nil {
		t.Fatalf("NewSecureBuffer() error = %v", err)
	}
	defer buf.Destroy()

	for i := 0; i < 3; i++ {
		locked, err := buf.Open()
		if err != nil {
			t.Fatalf("Open() iteration %d error = %v", i, err)
		}
		if !bytes.Equal(locked.Bytes(), []byte(secretStr)) {
			t.Errorf("Open() iteration %d: got different data", i)
		}
		locked.Destroy()
	}
}

func TestSecureBuffer_Destroy(t *testing.T) {
	t.Parallel()

	buf, err := NewSecureBuffer([]byte("secret-to-destroy"))
	if err != nil {
		t.Fatalf("NewSecureBuffer() error = %v", err)
	}

	buf.Destroy()
	// idempotent
	buf.Destroy()

	if _, err := buf.Open(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Open() after Destroy error = %v, want %v", err, ErrDestroyed)
	}
	if buf.Size() != 0 {
		t.Errorf("Size() after Destroy = %d, want 0", buf.Size())
	}
}

func TestSecureBuffer_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	secretStr := "concurrent-secret"
	buf, err := NewSecureBuffer([]byte(secretStr))
	if err != nil {
		t.Fatalf("NewSecureBuffer() error = %v", err)
	}
	defer buf.Destroy()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- true }()

			locked, err := buf.Open()
			if err != nil {
				t.Errorf("Open() error = %v", err)
				return
			}
			defer locked.Destroy()

			if !bytes.Equal(locked.Bytes(), []byte(secretStr)) {
				t.Error("Data mismatch in concurrent access")
			}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestWipe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "text", data: []byte("plaintext secret")},
		{name: "binary", data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{name: "empty", data: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			Wipe(tt.data)
			for i, b := range tt.data {
				if b != 0 {
					t.Fatalf("byte %d = %#x after Wipe", i, b)
				}
			}
		})
	}
}

func BenchmarkSecureBuffer(b *testing.B) {
	b.Run("NewSecureBuffer", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf, _ := NewSecureBuffer([]byte("benchmark-secret-data"))
			buf.Destroy()
		}
	})

	b.Run("Open", func(b *testing.B) {
		buf, _ := NewSecureBuffer([]byte("benchmark-secret-data"))
		defer buf.Destroy()

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			locked, _ := buf.Open()
			locked.Destroy()
		}
	})
}
