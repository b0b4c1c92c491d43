package client

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
)

// genAuthResponse computes the initial (or auth-switch) scrambled password for
// whichever plugin the server named, per that plugin's own scramble algorithm.
// addNull reports whether the caller must append a trailing NUL after the response.
func (c *Conn) genAuthResponse(authData []byte) (response []byte, addNull bool, err error) {
	switch c.authPluginName {
	case mysql.AUTH_NATIVE_PASSWORD:
		return scrambleNativePassword(authData, c.password), false, nil

	case mysql.AUTH_CACHING_SHA2_PASSWORD:
		return scrambleSHA256Password(authData, c.password), false, nil

	case mysql.AUTH_SHA256_PASSWORD:
		if len(c.password) == 0 {
			return nil, false, nil
		}
		if c.tlsConfig != nil || c.proto == "unix" {
			return []byte(c.password), true, nil
		}
		// no secure channel: send nothing now, the server will reply with its RSA
		// public key and the real password goes out encrypted.
		return nil, false, nil

	case mysql.AUTH_MYSQL_OLD_PASSWORD:
		return scrambleOldPassword(authData, c.password), true, nil

	default:
		return scrambleNativePassword(authData, c.password), false, nil
	}
}

// scrambleNativePassword implements mysql_native_password:
// SHA1(password) XOR SHA1(scramble + SHA1(SHA1(password))).
func scrambleNativePassword(scramble []byte, password string) []byte {
	if len(password) == 0 {
		return nil
	}

	stage1 := sha1Sum([]byte(password))
	stage2 := sha1Sum(stage1)

	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2)
	result := h.Sum(nil)

	for i := range result {
		result[i] ^= stage1[i]
	}
	return result
}

// scrambleSHA256Password implements caching_sha2_password's initial-response scramble:
// identical shape to the native-password algorithm but built on SHA-256.
func scrambleSHA256Password(scramble []byte, password string) []byte {
	if len(password) == 0 {
		return nil
	}

	stage1 := sha256Sum([]byte(password))
	stage2 := sha256Sum(stage1)

	h := sha256.New()
	h.Write(scramble)
	h.Write(stage2)
	result := h.Sum(nil)

	for i := range result {
		result[i] ^= stage1[i]
	}
	return result
}

// scrambleOldPassword implements the pre-4.1 mysql_old_password algorithm, kept only so
// a legacy server asking for it doesn't hang the handshake.
func scrambleOldPassword(scramble []byte, password string) []byte {
	if len(password) == 0 {
		return nil
	}

	hashPass := oldPasswordHash(password)
	hashMessage := oldPasswordHash(string(scramble[:8]))

	var seed1, seed2 uint32 = hashPass[0] ^ hashMessage[0], hashPass[1] ^ hashMessage[1]
	rnd := newOldRand(seed1, seed2)

	out := make([]byte, 8)
	for i := range out {
		out[i] = byte(rnd.next()*31) + 64
	}
	extra := byte(rnd.next() * 31)
	for i := range out {
		out[i] ^= extra
	}
	return out
}

func sha1Sum(b []byte) []byte {
	h := sha1.Sum(b)
	return h[:]
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// WriteAuthSwitchPacket resends the scrambled password for whichever plugin the server
// just switched the connection to.
func (c *Conn) WriteAuthSwitchPacket(auth []byte, addNull bool) error {
	data := append([]byte(nil), auth...)
	if addNull {
		data = append(data, 0)
	}
	return c.WritePacket(data)
}

// WriteClearAuthPacket sends the password as cleartext, used only over TLS or a unix
// socket (sha256_password/caching_sha2_password full auth on a secure channel).
func (c *Conn) WriteClearAuthPacket(password string) error {
	data := append([]byte(password), 0)
	return c.WritePacket(data)
}

// WritePublicKeyAuthPacket drives caching_sha2_password's full-auth exchange over a
// plaintext channel: request the server's RSA public key, then send the password
// encrypted with it.
func (c *Conn) WritePublicKeyAuthPacket(password string, seed []byte) error {
	if err := c.WritePacket([]byte{1}); err != nil {
		return errors.Trace(err)
	}

	data, err := c.ReadPacket()
	if err != nil {
		return errors.Trace(err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return errors.Errorf("invalid public key packet from server")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return errors.Trace(err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return errors.Errorf("server public key is not RSA")
	}

	return c.WriteEncryptedPassword(password, seed, rsaKey)
}

// WriteEncryptedPassword XORs the NUL-terminated password with a repeated seed, then
// RSA-OAEP/SHA1 encrypts it with the server's public key and sends it as the auth
// response packet.
func (c *Conn) WriteEncryptedPassword(password string, seed []byte, pub *rsa.PublicKey) error {
	plain := make([]byte, len(password)+1)
	copy(plain, password)
	for i := range plain {
		plain[i] ^= seed[i%len(seed)]
	}

	enc, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
	if err != nil {
		return errors.Trace(err)
	}

	return c.WritePacket(enc)
}

// oldPasswordHash and the small xorshift-like PRNG below implement the legacy (pre-4.1)
// mysql_old_password hash, per the documented algorithm; used only as a fallback.
func oldPasswordHash(s string) [2]uint32 {
	var nr, nr2, add uint32 = 1345345333, 0x12345671, 7

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			continue
		}
		tmp := uint32(c)
		nr ^= (((nr & 63) + add) * tmp) + (nr << 8)
		nr2 += (nr2 << 8) ^ nr
		add += tmp
	}
	return [2]uint32{nr & 0x7fffffff, nr2 & 0x7fffffff}
}

type oldRand struct {
	seed1, seed2 uint32
}

func newOldRand(seed1, seed2 uint32) *oldRand {
	return &oldRand{seed1: seed1 % 0x3fffffff, seed2: seed2 % 0x3fffffff}
}

func (r *oldRand) next() float64 {
	r.seed1 = (r.seed1*3 + r.seed2) % 0x3fffffff
	r.seed2 = (r.seed1 + r.seed2 + 33) % 0x3fffffff
	return float64(r.seed1) / 0x3fffffff
}
