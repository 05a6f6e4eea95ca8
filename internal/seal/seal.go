// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package seal is the optional encryption collaborator: it derives a
// key-encryption key from a password via PBKDF2, wraps/unwraps a
// data-encryption key under it, and encrypts/decrypts blob bytes with
// AES-CBC and PKCS#7 padding. It is a standalone contract — nothing in
// internal/engine or internal/filestore calls into it.
package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// wireVersion is the single leading byte every encrypted blob carries.
const wireVersion = 0x30

const (
	pbkdf2Iterations = 100_000
	kekSize          = 32
	saltSize         = 16
	ivSize           = aes.BlockSize
)

var (
	// ErrUnknownVersion is returned when the leading version byte of a
	// ciphertext does not match wireVersion.
	ErrUnknownVersion = errors.New("seal: unknown ciphertext version byte")
	// ErrShortCiphertext is returned when a ciphertext is too small to
	// contain a version byte, an IV, and at least one cipher block.
	ErrShortCiphertext = errors.New("seal: ciphertext too short")
	// ErrInvalidPadding is returned when PKCS#7 padding fails to
	// validate on decrypt — almost always a wrong key or tampering.
	ErrInvalidPadding = errors.New("seal: invalid padding")
)

// NewSalt returns a fresh random salt suitable for DeriveKEK.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("seal: generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKEK derives a 32-byte key-encryption key from password and salt
// using PBKDF2-HMAC-SHA256 with 100,000 iterations.
func DeriveKEK(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, kekSize, sha256.New)
}

// NewDEK returns a fresh random 32-byte data-encryption key.
func NewDEK() ([]byte, error) {
	dek := make([]byte, kekSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("seal: generate dek: %w", err)
	}
	return dek, nil
}

// SealDEK encrypts dek under kek, returning ciphertext in the same
// version-byte+IV+ciphertext wire format used for blob content.
func SealDEK(kek, dek []byte) ([]byte, error) {
	return encrypt(kek, dek)
}

// UnsealDEK decrypts a DEK previously produced by SealDEK.
func UnsealDEK(kek, sealed []byte) ([]byte, error) {
	return decrypt(kek, sealed)
}

// Encrypt encrypts plaintext under dek, producing wireVersion || iv ||
// ciphertext, where ciphertext is AES-CBC over PKCS#7-padded plaintext.
func Encrypt(dek, plaintext []byte) ([]byte, error) {
	return encrypt(dek, plaintext)
}

// Decrypt is the inverse of Encrypt.
func Decrypt(dek, ciphertext []byte) ([]byte, error) {
	return decrypt(dek, ciphertext)
}

func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("seal: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, 1+len(iv)+len(ciphertext))
	out = append(out, wireVersion)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

func decrypt(key, wire []byte) ([]byte, error) {
	if len(wire) < 1+ivSize+aes.BlockSize {
		return nil, ErrShortCiphertext
	}
	if wire[0] != wireVersion {
		return nil, ErrUnknownVersion
	}
	iv := wire[1 : 1+ivSize]
	ciphertext := wire[1+ivSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrShortCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: new cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	padding := data[len(data)-padLen:]
	for _, b := range padding {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}

// EncodeBase64 is the URL-safe base64 form meta.txt stores dek_base64 in.
func EncodeBase64(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("seal: decode base64: %w", err)
	}
	return b, nil
}
