package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/sourcelens/pkg/configs"
)

const memoryOutputBuffer = 256

func init() {
	RegisterFactory(configs.MQTypeMemory, memoryFactory)
}

// memoryFactory 创建进程内 gochannel，发布与订阅共用一个实例.
func memoryFactory(
	_ context.Context,
	_ *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: memoryOutputBuffer,
	}, logger)

	return ch, ch, nil
}
