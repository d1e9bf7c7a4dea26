package sshkey

import "fmt"

// EmptyKeyError indicates no key material was supplied.
type EmptyKeyError struct{}

func (EmptyKeyError) Error() string {
	return "ssh public key must not be empty"
}

// KeyReadError indicates failure to load a key file from disk.
type KeyReadError struct {
	Path string
	Err  error
}

func (e KeyReadError) Error() string {
	return fmt.Sprintf("read key %s failed: %v", e.Path, e.Err)
}

func (e KeyReadError) Unwrap() error {
	return e.Err
}

// KeyParseError indicates the material is not an authorized_keys entry.
type KeyParseError struct {
	Source string
	Err    error
}

func (e KeyParseError) Error() string {
	return fmt.Sprintf("parse key from %s failed: %v", e.Source, e.Err)
}

func (e KeyParseError) Unwrap() error {
	return e.Err
}

// PrivateKeyError rejects private key material passed where a public key belongs.
type PrivateKeyError struct {
	Source string
}

func (e PrivateKeyError) Error() string {
	return fmt.Sprintf("%s contains a private key; supply the .pub file instead", e.Source)
}

var errTooLarge = fmt.Errorf("file exceeds %d bytes", maxKeyFileSize)
