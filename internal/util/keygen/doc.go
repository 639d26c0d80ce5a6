// Package keygen generates credentials for new deployments: RSA key pairs
// for the VM admin account and random admin passwords for the workload.
//
// Private keys are PEM-encoded PKCS#1. Public keys use the OpenSSH
// authorized_keys format expected by the adminSshPublicKey template
// parameter.
package keygen
