/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errors

import (
	"errors"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/samber/lo"
)

// This is not an exhaustive list, add to it as needed
var transientErrorCodes = []string{
	"RequestLimitExceeded",
	"Throttling",
	"ThrottlingException",
	"InternalError",
	"InternalFailure",
	"ServiceUnavailable",
	"Unavailable",
	"RequestTimeout",
	request.ErrCodeSerialization,
	request.ErrCodeRead,
	request.ErrCodeResponseTimeout,
}

// IsTransient returns true if the err is an AWS error (even if it's wrapped)
// known to mean the call may succeed on retry: throttling, server-side
// failures, and connectivity problems.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var reqFailure awserr.RequestFailure
	if errors.As(err, &reqFailure) && reqFailure.StatusCode() >= 500 {
		return true
	}
	var awsError awserr.Error
	if errors.As(err, &awsError) {
		return lo.Contains(transientErrorCodes, awsError.Code())
	}
	return false
}
