// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package things runs the house's shared purchases.

Money is loaded into named accounts and spent on things from the house
catalogue. A buy opens a poll and debits the account only once the
poll passes. A special buy is a
one-off purchase outside the catalogue and needs a wider quorum.

Valid buys wait in a queue until someone fulfills them. The catalogue
itself changes through proposals settled by poll.
*/
package things
