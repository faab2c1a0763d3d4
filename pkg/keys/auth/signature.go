// Package auth verifies that mutating market requests are signed by the
// account they act on behalf of.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/metrics"
)

const (
	metricsStructName = "keys.auth.signature_verifier"
)

// SignedRequest is a request message carrying its owner's signature. The
// signature covers the JSON encoding of the message with an empty signature.
type SignedRequest interface {
	GetOwner() common.Address
	GetSignature() []byte
	SetSignature(signature []byte)
}

// SignatureVerifier verifies signed request messages by owner accounts
type SignatureVerifier struct {
	log *logrus.Entry
}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{
		log: logrus.StandardLogger().WithField("type", "keys/auth/signature_verifier"),
	}
}

// Authenticate authenticates that a request message is signed by its owner.
// The returned error is a gRPC status error.
func (v *SignatureVerifier) Authenticate(ctx context.Context, message SignedRequest) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Authenticate").End()

	owner := message.GetOwner()

	log := v.log.WithFields(logrus.Fields{
		"method": "Authenticate",
		"owner":  owner.String(),
	})

	if owner.IsZero() {
		return status.Error(codes.Unauthenticated, "owner is required")
	}

	signature := message.GetSignature()
	messageBytes, err := SigningBytes(message)
	if err != nil {
		log.WithError(err).Warn("failure encoding message")
		return status.Error(codes.Internal, "")
	}

	if !common.NewAccountFromAddress(owner).Verify(messageBytes, signature) {
		log.WithFields(logrus.Fields{
			"message":   base64.StdEncoding.EncodeToString(messageBytes),
			"signature": base58.Encode(signature),
		}).Info("message is not signature verified")
		return status.Error(codes.Unauthenticated, "")
	}
	return nil
}

// Sign signs message on behalf of account, which must be the message owner
func Sign(account *common.Account, message SignedRequest) error {
	if account.Address() != message.GetOwner() {
		return errors.New("account is not the message owner")
	}

	messageBytes, err := SigningBytes(message)
	if err != nil {
		return err
	}

	signature, err := account.Sign(messageBytes)
	if err != nil {
		return err
	}

	message.SetSignature(signature)
	return nil
}

// SigningBytes is the encoding of message that its owner signs. The message's
// signature is left as it was found.
func SigningBytes(message SignedRequest) ([]byte, error) {
	signature := message.GetSignature()
	message.SetSignature(nil)
	defer message.SetSignature(signature)

	encoded, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding message")
	}
	return encoded, nil
}
