package wallet

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// LitecoinParams carries the Litecoin mainnet constants needed for BIP32
// derivation and bech32 p2wpkh addresses. The script type is fixed for the
// system's lifetime: every previously issued address must stay recoverable
// from (mnemonic, index) alone.
var LitecoinParams = chaincfg.Params{
	Name:             "litecoin",
	Net:              wire.BitcoinNet(0xdbb6c0fb),
	PubKeyHashAddrID: 0x30,
	ScriptHashAddrID: 0x32,
	PrivateKeyID:     0xb0,
	Bech32HRPSegwit:  "ltc",

	// Ltpv / Ltub
	HDPrivateKeyID: [4]byte{0x01, 0x9d, 0x9c, 0xfe},
	HDPublicKeyID:  [4]byte{0x01, 0x9d, 0xa4, 0x62},

	// BIP44 coin type 2
	HDCoinType: 2,
}

func init() {
	// DecodeAddress recognizes bech32 prefixes through the global registry.
	if err := chaincfg.Register(&LitecoinParams); err != nil && !errors.Is(err, chaincfg.ErrDuplicateNet) {
		panic(err)
	}
}
