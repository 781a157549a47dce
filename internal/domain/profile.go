package domain

// Profile is the citizen record a submitter resolves to.
type Profile struct {
	UserID   string
	FullName string
	Phone    string
}
