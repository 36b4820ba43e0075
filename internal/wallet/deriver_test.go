package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewDeriver(t *testing.T) {
	t.Run("valid mnemonic", func(t *testing.T) {
		if _, err := NewDeriver(testMnemonic); err != nil {
			t.Fatalf("NewDeriver: %v", err)
		}
	})

	t.Run("invalid mnemonic", func(t *testing.T) {
		_, err := NewDeriver("not a real seed phrase at all")
		if !errors.Is(err, ErrInvalidMnemonic) {
			t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
		}
	})

	t.Run("bad checksum", func(t *testing.T) {
		bad := strings.Replace(testMnemonic, "about", "abandon", 1)
		if _, err := NewDeriver(bad); !errors.Is(err, ErrInvalidMnemonic) {
			t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
		}
	})
}

func TestDerive(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("deterministic", func(t *testing.T) {
		a, err := d.Address(0)
		if err != nil {
			t.Fatal(err)
		}
		b, err := d.Address(0)
		if err != nil {
			t.Fatal(err)
		}
		if a != b {
			t.Fatalf("same index gave different addresses: %s vs %s", a, b)
		}

		// A second deriver from the same phrase must agree.
		d2, err := NewDeriver(testMnemonic)
		if err != nil {
			t.Fatal(err)
		}
		c, err := d2.Address(0)
		if err != nil {
			t.Fatal(err)
		}
		if a != c {
			t.Fatalf("fresh deriver disagreed: %s vs %s", a, c)
		}
	})

	t.Run("distinct per index", func(t *testing.T) {
		seen := make(map[string]uint32)
		for index := uint32(0); index < 20; index++ {
			addr, err := d.Address(index)
			if err != nil {
				t.Fatalf("derive index %d: %v", index, err)
			}
			if prev, ok := seen[addr]; ok {
				t.Fatalf("index %d collides with index %d on %s", index, prev, addr)
			}
			seen[addr] = index
		}
	})

	t.Run("native segwit encoding", func(t *testing.T) {
		addr, err := d.Address(7)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(addr, "ltc1") {
			t.Fatalf("address %s is not bech32 with ltc prefix", addr)
		}
	})

	t.Run("keypair matches address", func(t *testing.T) {
		kp, err := d.Derive(3)
		if err != nil {
			t.Fatal(err)
		}
		if kp.PrivateKey == nil || kp.PublicKey == nil {
			t.Fatal("keypair missing key material")
		}
		addr, err := d.Address(3)
		if err != nil {
			t.Fatal(err)
		}
		if kp.Address != addr {
			t.Fatalf("Derive and Address disagree: %s vs %s", kp.Address, addr)
		}
	})
}

type fixedIndexSource struct {
	max int64
	err error
}

func (s fixedIndexSource) MaxAddressIndex(ctx context.Context) (int64, error) {
	return s.max, s.err
}

func TestAllocateAddress(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("empty table starts at zero", func(t *testing.T) {
		a := &Allocator{Source: fixedIndexSource{max: -1}, Deriver: d}
		addr, index, err := a.AllocateAddress(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if index != 0 {
			t.Fatalf("index = %d, want 0", index)
		}
		want, _ := d.Address(0)
		if addr != want {
			t.Fatalf("addr = %s, want %s", addr, want)
		}
	})

	t.Run("continues after highest claimed", func(t *testing.T) {
		a := &Allocator{Source: fixedIndexSource{max: 41}, Deriver: d}
		_, index, err := a.AllocateAddress(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if index != 42 {
			t.Fatalf("index = %d, want 42", index)
		}
	})

	t.Run("source error propagates", func(t *testing.T) {
		a := &Allocator{Source: fixedIndexSource{err: errors.New("db down")}, Deriver: d}
		if _, _, err := a.AllocateAddress(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}
