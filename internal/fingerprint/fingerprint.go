// Package fingerprint вычисляет SHA-256 отпечаток содержимого файла.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// Size - длина отпечатка в байтах.
const Size = sha256.Size

// HexLen - длина отпечатка в hex-представлении.
const HexLen = Size * 2

// Digest - отпечаток содержимого фиксированной длины.
type Digest [Size]byte

// String возвращает hex-представление отпечатка (64 символа, нижний регистр).
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero сообщает, что отпечаток не вычислен.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse разбирает hex-представление отпечатка.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != HexLen {
		return d, fmt.Errorf("неверная длина отпечатка: %d, ожидается %d", len(s), HexLen)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("неверный формат отпечатка: %w", err)
	}
	return d, nil
}

// Compute читает поток до конца и возвращает его отпечаток.
// Поток читается кусками, целиком в память не загружается.
// Ошибка чтения возвращается как *ComputationError.
func Compute(r io.Reader) (Digest, error) {
	h := NewHasher()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, &ComputationError{Err: err}
	}
	return h.Sum(), nil
}

// Bytes возвращает отпечаток среза байт.
func Bytes(b []byte) Digest {
	return sha256.Sum256(b)
}

// Hasher накапливает отпечаток по мере записи.
// Подходит для io.TeeReader, когда байты одновременно пишутся в хранилище.
type Hasher struct {
	h hash.Hash
	n int64
}

// NewHasher создает новый Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write добавляет байты к отпечатку. Никогда не возвращает ошибку.
func (h *Hasher) Write(p []byte) (int, error) {
	n, _ := h.h.Write(p)
	h.n += int64(n)
	return n, nil
}

// Sum возвращает отпечаток всех записанных байт.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// Written возвращает число записанных байт.
func (h *Hasher) Written() int64 {
	return h.n
}

// ComputationError - ошибка чтения потока при вычислении отпечатка.
type ComputationError struct {
	Err error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("ошибка вычисления отпечатка: %v", e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять ошибку через errors.Is(err, ErrComputation).
func (e *ComputationError) Is(target error) bool {
	return target == ErrComputation
}

// ErrComputation - общий признак ошибки вычисления отпечатка.
var ErrComputation = errors.New("ошибка вычисления отпечатка")
