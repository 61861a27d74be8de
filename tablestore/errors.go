// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tablestore

// NotFound is an error type used only when a row is not found in a TableStore.
type NotFound struct {
	PartitionKey string
	RowKey       string
}

// Error returns the key which was not found
func (nf NotFound) Error() string {
	return nf.PartitionKey + "/" + nf.RowKey
}

// IsNotFoundError is a helper method used to determine if returned errors resulted
// because the row didn't exist as opposed to something going wrong.
func IsNotFoundError(err error) bool {
	_, ok := err.(NotFound)

	return ok
}

// TableNotFound is an error type used when the backing table does not exist.
type TableNotFound struct {
	Table string
}

// Error returns the table which was not found
func (tnf TableNotFound) Error() string {
	return tnf.Table
}

// IsTableNotFoundError is a helper method used to determine if returned errors
// resulted because the backing table is missing.
func IsTableNotFoundError(err error) bool {
	_, ok := err.(TableNotFound)

	return ok
}

// ConditionFailed is an error type used when a conditional write fails because
// of a version mismatch.
type ConditionFailed struct {
	PartitionKey    string
	RowKey          string
	ExpectedVersion string
	ActualVersion   string
}

// Error (Required method of error) returns an error message for debugging
func (err ConditionFailed) Error() string {
	return "Row: \"" + err.PartitionKey + "/" + err.RowKey + "\" expected: \"" +
		err.ExpectedVersion + "\" actual: \"" + err.ActualVersion + "\""
}

// IsConditionFailedError is a helper method used to determine if conditional
// writes failed because of version mismatches.
func IsConditionFailedError(err error) bool {
	_, ok := err.(ConditionFailed)

	return ok
}

// EntityExists is an error type used when an insert collides with an existing
// row.
type EntityExists struct {
	PartitionKey string
	RowKey       string
}

// Error returns the key which already exists
func (ee EntityExists) Error() string {
	return ee.PartitionKey + "/" + ee.RowKey
}

// IsEntityExistsError is a helper method used to determine if an insert failed
// because the row already existed.
func IsEntityExistsError(err error) bool {
	_, ok := err.(EntityExists)

	return ok
}
