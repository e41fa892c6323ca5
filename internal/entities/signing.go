package entities

// SigningHandle carries the derived key material needed to submit an
// operation on behalf of an account. Key holds the raw child private key
// bytes; each chain adapter turns them into its own key type.
type SigningHandle struct {
	Identifier string
	Address    string
	Key        []byte
}
