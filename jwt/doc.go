// Package jwt issues and verifies the access tokens handed out by the demo API. Claims
// carry the user profile fields the session layer persists under LOGGED_USER.
package jwt
