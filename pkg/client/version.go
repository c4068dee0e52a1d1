package client

import (
	"context"
	"errors"
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

// ErrIncompatibleServer is returned when the daemon's version is outside the constraint.
var ErrIncompatibleServer = errors.New("client: incompatible server version")

// VerifyServerVersion calls method, reads the string member field of its result and checks
// it against a semver constraint such as ">= 4.30, < 5". It returns the parsed version.
func (c *Client) VerifyServerVersion(ctx context.Context, method, field, constraint string) (*masterminds.Version, error) {
	cons, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}

	var result map[string]interface{}
	if err := c.Invoke(ctx, method, nil, &result); err != nil {
		return nil, err
	}
	raw, ok := result[field].(string)
	if !ok {
		return nil, fmt.Errorf("%s - %s result has no string %q", logPrefix, method, field)
	}
	v, err := masterminds.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - server reported unparsable version %q: %w", logPrefix, raw, err)
	}
	if !cons.Check(v) {
		return v, fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleServer, v, constraint)
	}
	return v, nil
}
