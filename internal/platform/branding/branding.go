// Package branding holds product naming shared by user-facing surfaces.
package branding

// AppName is the product name shown in authenticator prompts.
const AppName = "OmniSign"
