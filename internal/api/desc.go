package api

import (
	"context"

	"google.golang.org/grpc"
)

const servicePrefix = "leadchat.v1."

// unary builds a method descriptor from a method expression such as
// (*MessageService).SendText.
func unary[S any, Req any, Res any](service, name string, call func(S, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	method := fullMethod(service, name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

// serverStream builds a server-streaming descriptor.
func serverStream[S any, Req any, Res any](name string, call func(S, *Req, grpc.ServerStreamingServer[Res]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, &grpc.GenericServerStream[Req, Res]{ServerStream: stream})
		},
	}
}

func fullMethod(service, name string) string {
	return "/" + servicePrefix + service + "/" + name
}

// SessionServer is the server API of SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	StartAuth(*Empty, grpc.ServerStreamingServer[AuthEvent]) error
	Connect(context.Context, *Empty) (*Ack, error)
	Disconnect(context.Context, *Empty) (*Ack, error)
	Logout(context.Context, *Empty) (*Ack, error)
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "SessionService",
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SessionService", "GetStatus", SessionServer.GetStatus),
		unary("SessionService", "Connect", SessionServer.Connect),
		unary("SessionService", "Disconnect", SessionServer.Disconnect),
		unary("SessionService", "Logout", SessionServer.Logout),
	},
	Streams: []grpc.StreamDesc{
		serverStream("StartAuth", SessionServer.StartAuth),
	},
}

// ConversationServer is the server API of ConversationService.
type ConversationServer interface {
	List(context.Context, *ListRequest) (*ConversationList, error)
	Refresh(context.Context, *ListRequest) (*ConversationList, error)
	Select(context.Context, *ChannelRequest) (*HistoryResponse, error)
	SetArchived(context.Context, *ArchiveRequest) (*Ack, error)
	Watch(*WatchRequest, grpc.ServerStreamingServer[Event]) error
}

var conversationServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "ConversationService",
	HandlerType: (*ConversationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ConversationService", "List", ConversationServer.List),
		unary("ConversationService", "Refresh", ConversationServer.Refresh),
		unary("ConversationService", "Select", ConversationServer.Select),
		unary("ConversationService", "SetArchived", ConversationServer.SetArchived),
	},
	Streams: []grpc.StreamDesc{
		serverStream("Watch", ConversationServer.Watch),
	},
}

// MessageServer is the server API of MessageService.
type MessageServer interface {
	LoadHistory(context.Context, *ChannelRequest) (*HistoryResponse, error)
	LoadMore(context.Context, *LoadMoreRequest) (*HistoryResponse, error)
	SendText(context.Context, *SendTextRequest) (*MessageResponse, error)
	SendMedia(context.Context, *SendMediaRequest) (*MessageResponse, error)
	Reply(context.Context, *ReplyRequest) (*MessageResponse, error)
	Edit(context.Context, *EditRequest) (*EditResponse, error)
	Delete(context.Context, *DeleteRequest) (*Ack, error)
	Forward(context.Context, *ForwardRequest) (*MessageResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "MessageService",
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("MessageService", "LoadHistory", MessageServer.LoadHistory),
		unary("MessageService", "LoadMore", MessageServer.LoadMore),
		unary("MessageService", "SendText", MessageServer.SendText),
		unary("MessageService", "SendMedia", MessageServer.SendMedia),
		unary("MessageService", "Reply", MessageServer.Reply),
		unary("MessageService", "Edit", MessageServer.Edit),
		unary("MessageService", "Delete", MessageServer.Delete),
		unary("MessageService", "Forward", MessageServer.Forward),
		unary("MessageService", "Search", MessageServer.Search),
	},
}

// BroadcastServer is the server API of BroadcastService.
type BroadcastServer interface {
	ListGroups(context.Context, *Empty) (*GroupList, error)
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
	Dispatch(context.Context, *DispatchRequest) (*DispatchResponse, error)
	ImportRecords(context.Context, *ImportRequest) (*ImportResponse, error)
}

var broadcastServiceDesc = grpc.ServiceDesc{
	ServiceName: servicePrefix + "BroadcastService",
	HandlerType: (*BroadcastServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("BroadcastService", "ListGroups", BroadcastServer.ListGroups),
		unary("BroadcastService", "Resolve", BroadcastServer.Resolve),
		unary("BroadcastService", "Dispatch", BroadcastServer.Dispatch),
		unary("BroadcastService", "ImportRecords", BroadcastServer.ImportRecords),
	},
}

// RegisterSessionService registers s on srv.
func RegisterSessionService(srv grpc.ServiceRegistrar, s SessionServer) {
	srv.RegisterService(&sessionServiceDesc, s)
}

// RegisterConversationService registers s on srv.
func RegisterConversationService(srv grpc.ServiceRegistrar, s ConversationServer) {
	srv.RegisterService(&conversationServiceDesc, s)
}

// RegisterMessageService registers s on srv.
func RegisterMessageService(srv grpc.ServiceRegistrar, s MessageServer) {
	srv.RegisterService(&messageServiceDesc, s)
}

// RegisterBroadcastService registers s on srv.
func RegisterBroadcastService(srv grpc.ServiceRegistrar, s BroadcastServer) {
	srv.RegisterService(&broadcastServiceDesc, s)
}
