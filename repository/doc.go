// Package repository provides generic repositories over bun: a read-only
// repository with filter, order, include and paging options, and a
// read/write repository whose creates, updates and deletes are staged in a
// Session and committed together in one transaction.
package repository
