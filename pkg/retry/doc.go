// Package retry provides an immutable retry policy, a per-sequence retry context and a
// generic executor that re-runs a unit of work while its failures are retryable.
//
// A Policy is shared configuration and is never mutated after construction. Each retry
// sequence derives its own Context from the policy, so one policy can drive any number of
// concurrent sequences:
//
//	resp, err := retry.Run(ctx, retry.OperationPolicy(), func(ctx context.Context) (*Reply, error) {
//	    return send(ctx)
//	})
//
// An attempts value of N permits the unit of work to run N+1 times: the first try plus N retries.
package retry
