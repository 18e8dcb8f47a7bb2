package kms

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"

	"github.com/suhana-ai/appsecurity"
)

// KMS metrics.
var (
	_ appsecurity.KeyManagementService = (*AWSKMS)(nil)

	clientFactory = kms.New

	encryptKeyTimer = metrics.GetOrRegisterTimer(appsecurity.MetricsPrefix+".kms.aws.encryptkey", nil)
	decryptKeyTimer = metrics.GetOrRegisterTimer(appsecurity.MetricsPrefix+".kms.aws.decryptkey", nil)
)

// KMS is implemented by the client in the kms package from the AWS SDK.
// We only use the subset of methods defined below.
type KMS interface {
	EncryptWithContext(aws.Context, *kms.EncryptInput, ...request.Option) (*kms.EncryptOutput, error)
	DecryptWithContext(aws.Context, *kms.DecryptInput, ...request.Option) (*kms.DecryptOutput, error)
}

// AWSKMS protects ring keys under a customer master key held in AWS KMS.
type AWSKMS struct {
	Client KMS
	KeyID  string
}

// NewAWS returns a new AWSKMS using the master key identified by keyID
// (a key ID, alias, or ARN) in the given region.
func NewAWS(sess client.ConfigProvider, region, keyID string) *AWSKMS {
	return &AWSKMS{
		Client: clientFactory(sess, aws.NewConfig().WithRegion(region)),
		KeyID:  keyID,
	}
}

// EncryptKey encrypts the byte slice with the configured master key.
func (k *AWSKMS) EncryptKey(ctx context.Context, bytes []byte) ([]byte, error) {
	defer encryptKeyTimer.UpdateSince(time.Now())

	out, err := k.Client.EncryptWithContext(ctx, &kms.EncryptInput{
		KeyId:     aws.String(k.KeyID),
		Plaintext: bytes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error encrypting key under KMS master key")
	}

	return out.CiphertextBlob, nil
}

// DecryptKey decrypts the encrypted byte slice using the configured master key.
func (k *AWSKMS) DecryptKey(ctx context.Context, encKey []byte) ([]byte, error) {
	defer decryptKeyTimer.UpdateSince(time.Now())

	out, err := k.Client.DecryptWithContext(ctx, &kms.DecryptInput{
		KeyId:          aws.String(k.KeyID),
		CiphertextBlob: encKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error decrypting key under KMS master key")
	}

	return out.Plaintext, nil
}
