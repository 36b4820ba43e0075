package wallet

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
)

// ErrInvalidMnemonic means the configured seed phrase failed BIP39 checksum
// validation. Fatal at startup for anything that derives keys.
var ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

type Keypair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
	Address    string
}

// Deriver derives per-order Litecoin keypairs along m/44'/2'/0'/0/index.
// Derivation is a pure function of (mnemonic, index): the same inputs yield
// the same address on every call, on any machine.
type Deriver struct {
	external *hdkeychain.ExtendedKey
}

// NewDeriver validates the mnemonic and pre-derives the external chain key
// m/44'/2'/0'/0, so per-index derivation is a single child step.
func NewDeriver(mnemonic string) (*Deriver, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &LitecoinParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44, // purpose
		hdkeychain.HardenedKeyStart + 2,  // Litecoin coin type
		hdkeychain.HardenedKeyStart + 0,  // account
		0,                                // external chain
	}
	key := master
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive path step %d: %w", step, err)
		}
	}
	return &Deriver{external: key}, nil
}

func (d *Deriver) Derive(index uint32) (*Keypair, error) {
	child, err := d.external.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, err
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}

	addr, err := p2wpkhAddress(pub.SerializeCompressed())
	if err != nil {
		return nil, err
	}
	return &Keypair{PrivateKey: priv, PublicKey: pub, Address: addr}, nil
}

// Address derives only the deposit address for an index.
func (d *Deriver) Address(index uint32) (string, error) {
	kp, err := d.Derive(index)
	if err != nil {
		return "", err
	}
	return kp.Address, nil
}

func p2wpkhAddress(compressedPub []byte) (string, error) {
	hash := sha256.Sum256(compressedPub)
	rip := ripemd160.New()
	_, _ = rip.Write(hash[:])

	addr, err := btcutil.NewAddressWitnessPubKeyHash(rip.Sum(nil), &LitecoinParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
