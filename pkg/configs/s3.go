package configs

import (
	"net/url"

	"github.com/spf13/viper"
)

// S3Config 对象存储配置，开启后上传的 SourceMap 会归档一份到桶中.
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"          rule:"required_if=Enabled true"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"       rule:"omitempty,min=3,max=63"`
	Region          string `mapstructure:"region"`
}

// HostAndSecure 返回 minio 需要的 host:port 与是否走 TLS.
// Endpoint 可以写成完整 URL，https 协议会强制开启 TLS.
func (c *S3Config) HostAndSecure() (string, bool) {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return c.Endpoint, c.UseSSL
	}

	return u.Host, c.UseSSL || u.Scheme == "https"
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("s3.bucket_name", AppName)
	v.SetDefault("s3.region", "us-east-1")
}
