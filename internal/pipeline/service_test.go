package pipeline

//go:generate mockgen -source=../ca/ca.go -destination=../ca/mocks/mocks.go -package=mocks
//go:generate mockgen -source=../issuer/issuer.go -destination=../issuer/mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certflow/internal/artifact"
	"certflow/internal/audit"
	"certflow/internal/ca"
	camocks "certflow/internal/ca/mocks"
	"certflow/internal/issuer"
	issuermocks "certflow/internal/issuer/mocks"
	"certflow/internal/notify"
	"certflow/pkg/platform/sentinel"
	"certflow/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	caMock  *camocks.MockClient
	issMock *issuermocks.MockIssuer
	store   *artifact.InMemoryStore
	sender  *notify.MemorySender
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.caMock = camocks.NewMockClient(s.ctrl)
	s.issMock = issuermocks.NewMockIssuer(s.ctrl)
	s.store = artifact.NewInMemoryStore()
	s.sender = notify.NewMemorySender()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := notify.NewRouter(s.sender, log, nil)
	s.service = New(s.caMock, s.store, s.issMock, audit.NewRecorder(s.store), router, log, nil)
	s.service.now = func() time.Time { return s.now }
}

// issuedDescriptor builds a CA descriptor expiring at the given instant.
func (s *ServiceSuite) issuedDescriptor(notAfter time.Time) ca.Descriptor {
	return ca.Descriptor{Handle: "cert/old-1234", Status: ca.StatusIssued, NotAfter: &notAfter}
}

// readRecord unmarshals a stored artifact into the given record type.
func (s *ServiceSuite) readRecord(key string, into any) {
	obj, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err, "expected record at %s", key)
	s.Require().NoError(json.Unmarshal(obj.Body, into))
}

func (s *ServiceSuite) keysWithSuffix(suffix string) []string {
	var matched []string
	for _, k := range s.store.Keys() {
		if strings.HasSuffix(k, suffix) {
			matched = append(matched, k)
		}
	}
	return matched
}

func (s *ServiceSuite) seedArtifacts(domain, expiration string) {
	meta := map[string]string{"domain": domain, "expiration": expiration}
	s.Require().NoError(s.store.Put(s.ctx, certificatePath(domain, fileCert), []byte("cert"), meta))
	s.Require().NoError(s.store.Put(s.ctx, certificatePath(domain, fileKey), []byte("key"), meta))
	s.Require().NoError(s.store.Put(s.ctx, certificatePath(domain, fileChain), []byte("chain"), meta))
}

func (s *ServiceSuite) TestCheck() {
	const domain = "example.com"

	s.Run("valid certificate far from expiry is satisfied", func() {
		s.SetupTest()
		notAfter := s.now.Add(60 * 24 * time.Hour)
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).Return(s.issuedDescriptor(notAfter), nil)

		result, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		s.False(result.Expired)
		s.Empty(result.Reason)
		s.Equal("cert/old-1234", result.CertificateHandle)

		var record audit.CheckRecord
		s.readRecord(audit.Path(result.TransactionID, audit.RecordCheckMetadata), &record)
		s.Equal(audit.ActionCheck, record.Action)
		s.False(record.IsExpired)
		s.False(record.IsExpiringSoon)
		s.Equal(string(ca.StatusIssued), record.CertificateStatus)
	})

	s.Run("expiring certificate needs action", func() {
		s.SetupTest()
		notAfter := s.now.Add(10 * 24 * time.Hour)
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).Return(s.issuedDescriptor(notAfter), nil)

		result, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		s.True(result.Expired)
		s.Equal(ReasonExpiringSoon, result.Reason)
		s.Equal(notAfter.UTC().Format(time.RFC3339), result.ExpirationDate)

		var record audit.CheckRecord
		s.readRecord(audit.Path(result.TransactionID, audit.RecordCheckMetadata), &record)
		s.False(record.IsExpired)
		s.True(record.IsExpiringSoon)
	})

	s.Run("already expired certificate needs action", func() {
		s.SetupTest()
		notAfter := s.now.Add(-24 * time.Hour)
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).Return(s.issuedDescriptor(notAfter), nil)

		result, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		s.True(result.Expired)

		var record audit.CheckRecord
		s.readRecord(audit.Path(result.TransactionID, audit.RecordCheckMetadata), &record)
		s.True(record.IsExpired)
		s.True(record.IsExpiringSoon)
	})

	s.Run("missing certificate needs action with not-found reason", func() {
		s.SetupTest()
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound))

		result, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		s.True(result.Expired)
		s.Equal(ReasonNotFound, result.Reason)
		s.Empty(result.CertificateHandle)

		var record audit.CheckRecord
		s.readRecord(audit.Path(result.TransactionID, audit.RecordCheckMetadata), &record)
		s.Equal(string(ca.StatusNotFound), record.CertificateStatus)
		s.True(record.IsExpired)
		s.True(record.IsExpiringSoon)
	})

	s.Run("pending certificate without expiration is treated as missing", func() {
		s.SetupTest()
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{Handle: "cert/pending", Status: ca.StatusPending}, nil)

		result, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		s.True(result.Expired)
		s.Equal(ReasonNotFound, result.Reason)

		var record audit.CheckRecord
		s.readRecord(audit.Path(result.TransactionID, audit.RecordCheckMetadata), &record)
		s.Equal(string(ca.StatusPending), record.CertificateStatus)
	})

	s.Run("repeated checks differ only by transaction id", func() {
		s.SetupTest()
		notAfter := s.now.Add(10 * 24 * time.Hour)
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(s.issuedDescriptor(notAfter), nil).Times(2)

		first, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)
		second, err := s.service.Check(s.ctx, domain)
		s.Require().NoError(err)

		s.NotEqual(first.TransactionID, second.TransactionID)
		first.TransactionID = ""
		second.TransactionID = ""
		s.Equal(first, second)
	})

	s.Run("CA failure writes an error record and propagates", func() {
		s.SetupTest()
		cause := errors.New("upstream timeout")
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).Return(ca.Descriptor{}, cause)

		_, err := s.service.Check(s.ctx, domain)
		s.Require().Error(err)
		s.ErrorIs(err, cause)

		keys := s.keysWithSuffix("/" + audit.RecordCheckError)
		s.Require().Len(keys, 1)

		var record audit.ErrorRecord
		s.readRecord(keys[0], &record)
		s.Equal(audit.ActionCheckError, record.Action)
		s.Equal(domain, record.Domain)
		s.Contains(record.ErrorMessage, "upstream timeout")
	})
}

func (s *ServiceSuite) TestGenerate() {
	const domain = "example.com"
	const txID = "tx-generate"

	s.Run("success persists artifacts and records metadata", func() {
		s.SetupTest()
		notAfter := s.now.Add(90 * 24 * time.Hour)
		certPEM, keyPEM := testutil.SelfSignedCert(s.T(), domain, notAfter)
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{Cert: certPEM, Key: keyPEM, Chain: certPEM}, nil)

		result := s.service.Generate(s.ctx, domain, txID, "cert/old-1234")
		s.True(result.Success)
		s.Equal(notAfter.UTC().Format(time.RFC3339), result.ExpirationDate)
		s.Equal(certificateLocation(domain), result.ArtifactLocation)

		for _, file := range []string{fileCert, fileKey, fileChain} {
			obj, err := s.store.Get(s.ctx, certificatePath(domain, file))
			s.Require().NoError(err, "expected artifact %s", file)
			s.Equal(result.ExpirationDate, obj.Metadata["expiration"])
			s.Equal(txID, obj.Metadata["transaction_id"])
		}

		var record audit.GenerationRecord
		s.readRecord(audit.Path(txID, audit.RecordGenerationMetadata), &record)
		s.True(record.Success)
		s.Equal("cert/old-1234", record.OldHandle)
		s.Equal(audit.ActionGeneration, record.Action)
	})

	s.Run("issuer failure is recovered, not raised", func() {
		s.SetupTest()
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{}, errors.New("dns challenge failed"))

		result := s.service.Generate(s.ctx, domain, txID, "")
		s.False(result.Success)
		s.Contains(result.Error, "dns challenge failed")

		_, err := s.store.Get(s.ctx, certificatePath(domain, fileCert))
		s.ErrorIs(err, sentinel.ErrNotFound)

		var record audit.GenerationRecord
		s.readRecord(audit.Path(txID, audit.RecordGenerationError), &record)
		s.False(record.Success)
		s.Contains(record.Error, "dns challenge failed")
	})

	s.Run("unparseable certificate is recovered", func() {
		s.SetupTest()
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{Cert: []byte("not pem"), Key: []byte("k"), Chain: []byte("c")}, nil)

		result := s.service.Generate(s.ctx, domain, txID, "")
		s.False(result.Success)

		var record audit.GenerationRecord
		s.readRecord(audit.Path(txID, audit.RecordGenerationError), &record)
		s.False(record.Success)
	})
}

func (s *ServiceSuite) TestReplace() {
	const domain = "example.com"
	const txID = "tx-replace"
	const expiration = "2024-09-01T12:00:00Z"

	s.Run("success imports, deletes old handle, and writes one metadata record", func() {
		s.SetupTest()
		s.seedArtifacts(domain, expiration)
		s.caMock.EXPECT().Import(gomock.Any(), []byte("cert"), []byte("key"), []byte("chain")).
			Return("cert/new-5678", nil)
		s.caMock.EXPECT().Delete(gomock.Any(), "cert/old-1234").Return(nil)

		result, err := s.service.Replace(s.ctx, domain, txID, "cert/old-1234")
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal("cert/new-5678", result.NewHandle)
		s.True(result.OldDeleted)
		s.Empty(result.DeletionError)
		s.Equal(expiration, result.ExpirationDate)

		var record audit.ReplacementRecord
		s.readRecord(audit.Path(txID, audit.RecordReplacementMetadata), &record)
		s.True(record.Success)
		s.Empty(record.Error)
		s.Empty(s.keysWithSuffix("/" + audit.RecordReplacementError))

		var active InventoryEntry
		s.readRecord(inventoryPath(domain, "cert/new-5678", false), &active)
		s.Equal(InventoryActive, active.Status)
		s.Equal("cert/new-5678", active.CertificateHandle)

		var retired InventoryEntry
		s.readRecord(inventoryPath(domain, "cert/old-1234", true), &retired)
		s.Equal(InventoryDeleted, retired.Status)
		s.Equal("cert/new-5678", retired.ReplacedBy)

		exists, err := s.store.Exists(s.ctx, summaryPath(domain, txID))
		s.Require().NoError(err)
		s.True(exists)
	})

	s.Run("deletion failure is non-fatal", func() {
		s.SetupTest()
		s.seedArtifacts(domain, expiration)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("cert/new-5678", nil)
		s.caMock.EXPECT().Delete(gomock.Any(), "cert/old-1234").
			Return(errors.New("handle still in use"))

		result, err := s.service.Replace(s.ctx, domain, txID, "cert/old-1234")
		s.Require().NoError(err)
		s.True(result.Success)
		s.False(result.OldDeleted)
		s.Contains(result.DeletionError, "handle still in use")

		var record audit.ReplacementRecord
		s.readRecord(audit.Path(txID, audit.RecordReplacementMetadata), &record)
		s.True(record.Success)
		s.Contains(record.Error, "handle still in use")

		exists, err := s.store.Exists(s.ctx, inventoryPath(domain, "cert/old-1234", true))
		s.Require().NoError(err)
		s.False(exists, "no retired inventory entry when deletion failed")
	})

	s.Run("without an old handle no deletion is attempted", func() {
		s.SetupTest()
		s.seedArtifacts(domain, expiration)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("cert/new-5678", nil)

		result, err := s.service.Replace(s.ctx, domain, txID, "")
		s.Require().NoError(err)
		s.True(result.Success)
		s.False(result.OldDeleted)
		s.Empty(result.DeletionError)
	})

	s.Run("missing artifacts are terminal", func() {
		s.SetupTest()

		_, err := s.service.Replace(s.ctx, domain, txID, "cert/old-1234")
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrNotFound)

		var record audit.ReplacementRecord
		s.readRecord(audit.Path(txID, audit.RecordReplacementError), &record)
		s.False(record.Success)
		s.Empty(s.keysWithSuffix("/" + audit.RecordReplacementMetadata))
	})

	s.Run("import failure is terminal", func() {
		s.SetupTest()
		s.seedArtifacts(domain, expiration)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("", fmt.Errorf("bad key material: %w", sentinel.ErrInvalidInput))

		_, err := s.service.Replace(s.ctx, domain, txID, "cert/old-1234")
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrInvalidInput)

		var record audit.ReplacementRecord
		s.readRecord(audit.Path(txID, audit.RecordReplacementError), &record)
		s.Contains(record.Error, "bad key material")
	})

	s.Run("resumes from artifacts written by a different service instance", func() {
		s.SetupTest()
		s.seedArtifacts(domain, expiration)

		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		other := New(s.caMock, s.store, s.issMock, audit.NewRecorder(s.store),
			notify.NewRouter(s.sender, log, nil), log, nil)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("cert/new-5678", nil)

		result, err := other.Replace(s.ctx, domain, txID, "")
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal(expiration, result.ExpirationDate)
	})
}

func (s *ServiceSuite) TestRun() {
	const domain = "example.com"

	s.Run("satisfied check short-circuits without generation", func() {
		s.SetupTest()
		notAfter := s.now.Add(60 * 24 * time.Hour)
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).Return(s.issuedDescriptor(notAfter), nil)

		result, err := s.service.Run(s.ctx, domain)
		s.Require().NoError(err)
		s.False(result.Check.Expired)
		s.Nil(result.Generated)
		s.Nil(result.Replaced)
		s.Nil(result.Notification)
		s.Empty(s.sender.Published)
	})

	s.Run("full renewal succeeds and notifies", func() {
		s.SetupTest()
		notAfter := s.now.Add(90 * 24 * time.Hour)
		certPEM, keyPEM := testutil.SelfSignedCert(s.T(), domain, notAfter)

		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound))
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{Cert: certPEM, Key: keyPEM, Chain: certPEM}, nil)
		s.caMock.EXPECT().Import(gomock.Any(), certPEM, keyPEM, certPEM).
			Return("cert/new-5678", nil)

		result, err := s.service.Run(s.ctx, domain)
		s.Require().NoError(err)
		s.Require().NotNil(result.Replaced)
		s.True(result.Replaced.Success)
		s.Require().NotNil(result.Notification)
		s.Equal(notify.StatusSent, result.Notification.Status)
		s.Equal(notify.TypeCertificatesUpdated, result.Notification.NotificationType)

		published, ok := s.sender.Last()
		s.Require().True(ok)
		s.Contains(published.Subject, "Certificates Renewed")
		s.Contains(published.Subject, domain)
	})

	s.Run("generation failure notifies and completes without error", func() {
		s.SetupTest()
		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound))
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{}, errors.New("dns challenge failed"))

		result, err := s.service.Run(s.ctx, domain)
		s.Require().NoError(err)
		s.Require().NotNil(result.Generated)
		s.False(result.Generated.Success)
		s.Nil(result.Replaced)
		s.Require().NotNil(result.Notification)
		s.Equal(notify.TypeGenerationFailure, result.Notification.NotificationType)

		published, ok := s.sender.Last()
		s.Require().True(ok)
		s.Contains(published.Subject, "URGENT:")
		s.Contains(published.Subject, "Generation Failed")
	})

	s.Run("replacement failure notifies and surfaces the error", func() {
		s.SetupTest()
		notAfter := s.now.Add(90 * 24 * time.Hour)
		certPEM, keyPEM := testutil.SelfSignedCert(s.T(), domain, notAfter)

		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound))
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{Cert: certPEM, Key: keyPEM, Chain: certPEM}, nil)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("", errors.New("import rejected"))

		result, err := s.service.Run(s.ctx, domain)
		s.Require().Error(err)
		s.Nil(result.Replaced)
		s.Require().NotNil(result.Notification)
		s.Equal(notify.TypeReplacementFailure, result.Notification.NotificationType)
	})

	s.Run("delivery failure never blocks a successful renewal", func() {
		s.SetupTest()
		s.sender.Err = errors.New("broker unreachable")
		notAfter := s.now.Add(90 * 24 * time.Hour)
		certPEM, keyPEM := testutil.SelfSignedCert(s.T(), domain, notAfter)

		s.caMock.EXPECT().FindByDomain(gomock.Any(), domain).
			Return(ca.Descriptor{}, fmt.Errorf("certificate for %s: %w", domain, sentinel.ErrNotFound))
		s.issMock.EXPECT().Issue(gomock.Any(), domain).
			Return(issuer.Bundle{Cert: certPEM, Key: keyPEM, Chain: certPEM}, nil)
		s.caMock.EXPECT().Import(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return("cert/new-5678", nil)

		result, err := s.service.Run(s.ctx, domain)
		s.Require().NoError(err)
		s.Require().NotNil(result.Notification)
		s.Equal(notify.StatusFailed, result.Notification.Status)
	})
}

func TestHandleSuffix(t *testing.T) {
	cases := []struct {
		handle string
		want   string
	}{
		{"cert/abc-123", "abc-123"},
		{"abc-123", "abc-123"},
		{"", "unknown"},
		{"a/b/c", "c"},
	}
	for _, tc := range cases {
		if got := handleSuffix(tc.handle); got != tc.want {
			t.Errorf("handleSuffix(%q) = %q, want %q", tc.handle, got, tc.want)
		}
	}
}
