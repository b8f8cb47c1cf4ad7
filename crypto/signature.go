// Copyright (C) 2024 Polaris Markets Ltd.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package crypto covers order authentication: parties sign the digest of
// their submission with the secp256k1 key behind their address, the same
// curve their settlement funds live on.
package crypto

import (
	"encoding/binary"

	ethcmn "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SignatureLen is the length of a [R || S || V] secp256k1 signature.
const SignatureLen = 65

const (
	orderDomainTag  = "polaris.order.v1"
	cancelDomainTag = "polaris.cancel.v1"
)

// ErrMalformedSignature is returned when a signature is not 65 bytes.
var ErrMalformedSignature = errors.New("malformed signature")

// OrderDigest builds the keccak digest a party signs over an order
// submission. Every field which affects matching is covered, so a
// signature cannot be replayed onto a different order.
func OrderDigest(marketID, party string, side int8, price, size, nonce uint64, orderType int8) []byte {
	buf := make([]byte, 0, len(orderDomainTag)+len(marketID)+len(party)+26)
	buf = append(buf, orderDomainTag...)
	buf = appendString(buf, marketID)
	buf = appendString(buf, party)
	buf = append(buf, byte(side), byte(orderType))
	buf = binary.BigEndian.AppendUint64(buf, price)
	buf = binary.BigEndian.AppendUint64(buf, size)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return ethcrypto.Keccak256(buf)
}

// CancelDigest builds the keccak digest a party signs over a
// cancellation.
func CancelDigest(orderID, party string) []byte {
	buf := make([]byte, 0, len(cancelDomainTag)+len(orderID)+len(party)+8)
	buf = append(buf, cancelDomainTag...)
	buf = appendString(buf, orderID)
	buf = appendString(buf, party)
	return ethcrypto.Keccak256(buf)
}

// Sign signs a digest with the given key, returning the 65 byte
// [R || S || V] signature.
func Sign(digest []byte, key []byte) ([]byte, error) {
	priv, err := ethcrypto.ToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signing key")
	}
	return ethcrypto.Sign(digest, priv)
}

// VerifySignature recovers the signer of the digest and compares it
// with the party's address. A malformed signature is an error, a wrong
// signer is (false, nil).
func VerifySignature(digest, sig []byte, address string) (bool, error) {
	if len(sig) != SignatureLen {
		return false, ErrMalformedSignature
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false, errors.Wrap(err, "couldn't recover signer")
	}
	signer := ethcrypto.PubkeyToAddress(*pub)
	return signer == ethcmn.HexToAddress(address), nil
}

// length-prefixed so adjacent variable length fields cannot be shifted
// into each other
func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
