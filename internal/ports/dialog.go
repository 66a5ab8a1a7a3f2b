package ports

// CredentialRequest describes the appliance a credential is being asked for.
type CredentialRequest struct {
	Appliance string
	Host      string
	User      string
}

// CredentialPrompt asks an operator for an appliance password.
// Implementations may use a TUI form or a test fake.
type CredentialPrompt interface {
	// PromptPassword returns the password entered for req.
	// An empty password with a nil error means the operator declined.
	PromptPassword(req CredentialRequest) (string, error)
}
