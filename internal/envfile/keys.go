// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package envfile

// Well-known record keys. The container deployment reads the same
// file, so the names double as environment variable names.
const (
	// KeyDomain is the public host name the deployment serves.
	KeyDomain = "DOMAIN"

	// KeyEmail is the contact address registered with the
	// certificate authority.
	KeyEmail = "LETSENCRYPT_EMAIL"

	// KeySyncUser is the account the recurring collection sync
	// authenticates as.
	KeySyncUser = "ANKIWEB_USER"

	// KeySyncKey is the credential for KeySyncUser.
	KeySyncKey = "ANKIWEB_SYNC_KEY"

	// KeyImage overrides the container image the deployment runs.
	KeyImage = "ANKI_IMAGE"

	// KeySyncMedia toggles media syncing for the recurring sync.
	KeySyncMedia = "SYNC_MEDIA"
)
