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

package crypto

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyAndAddress(t *testing.T) ([]byte, string) {
	t.Helper()
	priv, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(priv.PublicKey).Hex()
	return ethcrypto.FromECDSA(priv), addr
}

func TestSignAndVerifyOrderDigest(t *testing.T) {
	key, addr := testKeyAndAddress(t)

	digest := OrderDigest("market-1", addr, 1, 100, 10, 42, 1)
	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLen)

	ok, err := VerifySignature(digest, sig, addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	key, _ := testKeyAndAddress(t)
	_, otherAddr := testKeyAndAddress(t)

	digest := OrderDigest("market-1", otherAddr, 1, 100, 10, 42, 1)
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	ok, err := VerifySignature(digest, sig, otherAddr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsTamperedOrder(t *testing.T) {
	key, addr := testKeyAndAddress(t)

	digest := OrderDigest("market-1", addr, 1, 100, 10, 42, 1)
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	// same order with the price moved one tick
	tampered := OrderDigest("market-1", addr, 1, 101, 10, 42, 1)
	ok, err := VerifySignature(tampered, sig, addr)
	if err == nil {
		assert.False(t, ok)
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	_, addr := testKeyAndAddress(t)

	digest := CancelDigest("order-1", addr)
	_, err := VerifySignature(digest, []byte("too short"), addr)
	assert.ErrorIs(t, err, ErrMalformedSignature)
}

func TestDigestsCoverEveryField(t *testing.T) {
	base := OrderDigest("market-1", "0xparty", 1, 100, 10, 42, 1)

	assert.NotEqual(t, base, OrderDigest("market-2", "0xparty", 1, 100, 10, 42, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xother", 1, 100, 10, 42, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xparty", 2, 100, 10, 42, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xparty", 1, 101, 10, 42, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xparty", 1, 100, 11, 42, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xparty", 1, 100, 10, 43, 1))
	assert.NotEqual(t, base, OrderDigest("market-1", "0xparty", 1, 100, 10, 42, 2))

	// adjacent strings cannot be shifted into each other
	assert.NotEqual(t,
		OrderDigest("ab", "c", 1, 100, 10, 42, 1),
		OrderDigest("a", "bc", 1, 100, 10, 42, 1))

	assert.NotEqual(t, CancelDigest("order-1", "0xparty"), CancelDigest("order-2", "0xparty"))
}
