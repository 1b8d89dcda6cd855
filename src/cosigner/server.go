package cosigner

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	cometnet "github.com/cometbft/cometbft/libs/net"
	"github.com/cometbft/cometbft/libs/service"
	server "github.com/cometbft/cometbft/rpc/jsonrpc/server"
	rpctypes "github.com/cometbft/cometbft/rpc/jsonrpc/types"
)

// Handler answers signing requests addressed to this node.
type Handler interface {
	HandleVerifyAndSign(ctx context.Context, req *VerifyAndSignRequest) (*SignResult, error)
	HandleSignScalar(ctx context.Context, req *SignU256Request) (*SignResult, error)
}

type ServerConfig struct {
	Logger        log.Logger
	ListenAddress string
	Handler       Handler
	// Timeout bounds the handling of a single request, zero disables it.
	Timeout time.Duration
}

// Server exposes the Handler as skale_imaVerifyAndSign and skale_imaBSU256.
type Server struct {
	service.BaseService

	logger        log.Logger
	listenAddress string
	listener      net.Listener
	handler       Handler
	timeout       time.Duration
}

func NewServer(config *ServerConfig) *Server {
	s := &Server{
		logger:        config.Logger,
		listenAddress: config.ListenAddress,
		handler:       config.Handler,
		timeout:       config.Timeout,
	}

	s.BaseService = *service.NewBaseService(config.Logger, "CosignerRPCServer", s)
	return s
}

// Routes returns the JSON-RPC routes served by s.
func (s *Server) Routes() map[string]*server.RPCFunc {
	return map[string]*server.RPCFunc{
		MethodVerifyAndSign: server.NewRPCFunc(
			s.rpcVerifyAndSign,
			"direction,startMessageIdx,srcChainName,dstChainName,srcChainID,dstChainID,messages,qa",
		),
		MethodSignU256: server.NewRPCFunc(s.rpcSignU256, "valueToSign,qa"),
	}
}

// OnStart starts the rpc server to respond to signing requests
func (s *Server) OnStart() error {
	proto, address := cometnet.ProtocolAndAddress(s.listenAddress)

	lis, err := net.Listen(proto, address)
	if err != nil {
		return err
	}
	s.listener = lis

	mux := http.NewServeMux()
	server.RegisterRPCFuncs(mux, s.Routes(), log.NewFilter(s.Logger, log.AllowError()))

	tcpLogger := s.Logger.With("socket", "tcp")
	tcpLogger = log.NewFilter(tcpLogger, log.AllowError())
	config := server.DefaultConfig()

	go func() {
		defer lis.Close()
		if err := server.Serve(lis, mux, tcpLogger, config); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("Error serving RPC", "err", err)
		}
	}()

	return nil
}

func (s *Server) OnStop() {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("Error closing RPC listener", "err", err)
		}
	}
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) requestContext(ctx *rpctypes.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx.Context())
	}
	return context.WithTimeout(ctx.Context(), s.timeout)
}

func (s *Server) rpcVerifyAndSign(
	ctx *rpctypes.Context,
	direction string,
	startMessageIdx Uint64,
	srcChainName string,
	dstChainName string,
	srcChainID string,
	dstChainID string,
	messages []OutgoingMessage,
	qa Trace,
) (*SignResponse, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	res, err := s.handler.HandleVerifyAndSign(reqCtx, &VerifyAndSignRequest{
		Direction:       direction,
		StartMessageIdx: startMessageIdx,
		SrcChainName:    srcChainName,
		DstChainName:    dstChainName,
		SrcChainID:      srcChainID,
		DstChainID:      dstChainID,
		Messages:        messages,
		Trace:           qa,
	})
	if err != nil {
		s.logger.Error(
			"Failed to verify and sign",
			"correlation_id", qa.CorrelationID,
			"src_chain", srcChainName,
			"start", uint64(startMessageIdx),
			"err", err,
		)
		return nil, err
	}
	return &SignResponse{SignResult: res}, nil
}

func (s *Server) rpcSignU256(ctx *rpctypes.Context, valueToSign string, qa Trace) (*SignResponse, error) {
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	res, err := s.handler.HandleSignScalar(reqCtx, &SignU256Request{
		ValueToSign: valueToSign,
		Trace:       qa,
	})
	if err != nil {
		s.logger.Error("Failed to sign value", "correlation_id", qa.CorrelationID, "err", err)
		return nil, err
	}
	return &SignResponse{SignResult: res}, nil
}
