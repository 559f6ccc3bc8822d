package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

func dialBufconn(t *testing.T, c *fakeClassifier, models fakeModels) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(c, models, 1<<20, nil)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCHealth(t *testing.T) {
	for _, tc := range []struct {
		name   string
		models fakeModels
		want   healthpb.HealthCheckResponse_ServingStatus
	}{
		{"loaded", loadedModels(), healthpb.HealthCheckResponse_SERVING},
		{"missing", missingModels(), healthpb.HealthCheckResponse_NOT_SERVING},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialBufconn(t, &fakeClassifier{}, tc.models)
			resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: classifierServiceName})
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.GetStatus())
		})
	}
}

func TestGRPCClassify(t *testing.T) {
	c := &fakeClassifier{res: threePageResult()}
	client := NewClassifierClient(dialBufconn(t, c, loadedModels()))

	out, err := client.Classify(context.Background(), "nested/loan.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "loan.pdf", c.filename)
	assert.Equal(t, []byte("%PDF"), c.pdf)

	m := out.AsMap()
	assert.Equal(t, true, m["success"])
	assert.EqualValues(t, 3, m["page_count"])
	preds := m["predictions"].([]any)
	require.Len(t, preds, 3)
	assert.Equal(t, "Mortgage", preds[2].(map[string]any)["predicted_label"])
}

func TestGRPCClassifyErrors(t *testing.T) {
	t.Run("not a pdf", func(t *testing.T) {
		c := &fakeClassifier{res: threePageResult()}
		client := NewClassifierClient(dialBufconn(t, c, loadedModels()))
		_, err := client.Classify(context.Background(), "scan.tiff", []byte("x"))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Zero(t, c.calls)
	})

	t.Run("pipeline errors keep their code", func(t *testing.T) {
		for err, code := range map[error]codes.Code{
			common.ErrEmptyDocument:    codes.InvalidArgument,
			common.ErrModelUnavailable: codes.Unavailable,
			common.ErrModelInvocation:  codes.Internal,
		} {
			client := NewClassifierClient(dialBufconn(t, &fakeClassifier{err: err}, loadedModels()))
			_, got := client.Classify(context.Background(), "loan.pdf", []byte("x"))
			assert.Equal(t, code, status.Code(got), err.Error())
		}
	})
}

func TestGRPCModelInfo(t *testing.T) {
	out, err := NewClassifierClient(dialBufconn(t, &fakeClassifier{}, loadedModels())).ModelInfo(context.Background())
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, "logistic_regression", m["model_type"])
	assert.EqualValues(t, 1240, m["training_samples"])

	_, err = NewClassifierClient(dialBufconn(t, &fakeClassifier{}, missingModels())).ModelInfo(context.Background())
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
