// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import "errors"

// Sentinel errors returned by repositories to signal well-known conditions.
// Callers match them with [errors.Is].
var (
	// ErrVersionNotFound is returned when a requested entity version does
	// not exist.
	ErrVersionNotFound = errors.New("entity version not found")

	// ErrVersionConflict is returned by a compare-and-append when the
	// entity's latest version is not the expected one, or when a concurrent
	// writer took the version number first.
	ErrVersionConflict = errors.New("entity version conflict")

	// ErrStagedChangeNotFound is returned when no staged change has the
	// requested id.
	ErrStagedChangeNotFound = errors.New("staged change not found")

	// ErrStatusMismatch is returned by a conditional staged change update
	// when the stored status differs from the expected one.
	ErrStatusMismatch = errors.New("staged change status mismatch")

	// ErrBatchNotFound is returned when no sync batch has the requested id.
	ErrBatchNotFound = errors.New("sync batch not found")

	// ErrDuplicateID is returned when a record with the same id already exists.
	ErrDuplicateID = errors.New("record with this id already exists")

	// ErrNothingSaved is returned when a write completes without error but
	// affects no rows.
	ErrNothingSaved = errors.New("record was not saved")
)

// Low-level database operation errors, returned (wrapped) when a SQL-level
// operation fails before domain logic can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when a SELECT fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when a transaction cannot start.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when a commit fails. The
	// transaction is considered rolled back at this point.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when an INSERT, UPDATE or DELETE fails.
	ErrExecutingStatement = errors.New("failed to executing statement")

	// ErrScanningRow is returned when scanning a single row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrScanningRows is returned when multi-row iteration fails.
	ErrScanningRows = errors.New("failed to scan rows")

	// ErrEncodingColumn is returned when a JSON column cannot be encoded
	// or decoded.
	ErrEncodingColumn = errors.New("failed to encode json column")
)
