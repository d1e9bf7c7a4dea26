package sshkey

import (
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// maxKeyFileSize bounds how much of a key file is read.
const maxKeyFileSize = 64 << 10

// PublicKey is a parsed, normalized authorized_keys entry.
type PublicKey struct {
	Line        string
	Type        string
	Comment     string
	Fingerprint string
}

// Resolve accepts either a literal authorized_keys line or a path to a public
// key file and returns the parsed key. Nothing outside the local file is touched.
func Resolve(value string) (*PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, EmptyKeyError{}
	}
	if looksLikeKeyLine(value) {
		return Parse(value, "literal")
	}
	return Load(value)
}

// Load reads and parses the first key in a public key file.
func Load(path string) (*PublicKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, KeyReadError{Path: path, Err: err}
	}
	if info.Size() > maxKeyFileSize {
		return nil, KeyParseError{Source: path, Err: errTooLarge}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, KeyReadError{Path: path, Err: err}
	}
	return Parse(string(data), path)
}

// Parse parses authorized_keys content; only the first key is used.
func Parse(content, source string) (*PublicKey, error) {
	if strings.Contains(content, "PRIVATE KEY") {
		return nil, PrivateKeyError{Source: source}
	}
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(content))
	if err != nil {
		return nil, KeyParseError{Source: source, Err: err}
	}

	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	if comment != "" {
		line += " " + comment
	}
	return &PublicKey{
		Line:        line,
		Type:        pub.Type(),
		Comment:     comment,
		Fingerprint: ssh.FingerprintSHA256(pub),
	}, nil
}

// Contains reports whether authorized_keys content already carries key,
// comparing key material only.
func Contains(authorizedKeys string, key *PublicKey) bool {
	if key == nil {
		return false
	}
	rest := []byte(authorizedKeys)
	for len(rest) > 0 {
		pub, _, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return false
		}
		if ssh.FingerprintSHA256(pub) == key.Fingerprint {
			return true
		}
		rest = next
	}
	return false
}

func looksLikeKeyLine(value string) bool {
	for _, prefix := range []string{"ssh-", "ecdsa-", "sk-"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
