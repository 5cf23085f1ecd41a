// Package password hashes and verifies account passwords for the demo API with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the parameters from the stored hash, so raising [Params] only
// affects new hashes.
package password
