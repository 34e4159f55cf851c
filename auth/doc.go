// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides house keys, voter hashing, and id generation.

# House Keys

House keys use HMAC-SHA256 to create deterministic, verifiable keys:

	houseKey := auth.GenerateHouseKey(houseID, salt)
	err := auth.ValidateHouseKey(houseID, houseKey, salt)

The key is URL-safe base64 encoded without padding and is returned once when
the house is added. Since it's deterministic, validation needs no storage.
Every house-scoped route expects it in the X-House-Key header.

# Voter Hashing

Poll votes never store a resident id:

	hashed := auth.HashVoter(residentID, salt)

The full HMAC-SHA256 is hex encoded, so one resident maps to one vote row
per poll.

# ID Generation

Rows created by the service use random UUIDs:

	id := auth.NewID()

Houses and residents keep the ids assigned by the chat platform.
*/
package auth
