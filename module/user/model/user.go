package model

import (
	"math"
	"time"
)

// 角色
const (
	RoleClient = "client"
)

// User 移动端用户主档（集合 client）
// 好友关系、设备令牌随主档存放；在线状态允许与实际连接短暂不一致
type User struct {
	UserID string `bson:"user_id" json:"userId"` // 全局唯一、不可变
	Role   string `bson:"role" json:"role"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email,omitempty" json:"email,omitempty"`
	Image  string `bson:"image,omitempty" json:"image,omitempty"`

	Friends []string `bson:"friends" json:"friends"`

	// 在线状态
	IsOnline     bool      `bson:"is_online" json:"isOnline"`
	LastActiveAt time.Time `bson:"last_active_at,omitempty" json:"lastActiveAt"`
	LastLocation *Location `bson:"last_location,omitempty" json:"lastLocation,omitempty"`

	Devices []Device `bson:"devices,omitempty" json:"-"`

	CreateTime time.Time `bson:"create_time" json:"createTime"`
	UpdateTime time.Time `bson:"update_time" json:"updateTime"`
}

// Location WGS84 经纬度
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Device 推送设备令牌
type Device struct {
	Token      string    `bson:"token" json:"token"`
	Device     string    `bson:"device,omitempty" json:"device,omitempty"`
	CreateTime time.Time `bson:"create_time" json:"createTime"`
}

// Profile 对外展示的精简资料
type Profile struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Image    string `json:"image,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

func (u *User) GetTableName() string {
	return "client"
}

func (u *User) Profile() Profile {
	return Profile{UserID: u.UserID, Name: u.Name, Email: u.Email, Image: u.Image, IsOnline: u.IsOnline}
}

func (u *User) DeviceTokens() []string {
	out := make([]string, 0, len(u.Devices))
	for _, d := range u.Devices {
		if d.Token != "" {
			out = append(out, d.Token)
		}
	}
	return out
}

func (u *User) IsFriend(userID string) bool {
	for _, f := range u.Friends {
		if f == userID {
			return true
		}
	}
	return false
}

const (
	UserFieldUserID       = "user_id"
	UserFieldFriends      = "friends"
	UserFieldIsOnline     = "is_online"
	UserFieldLastActiveAt = "last_active_at"
	UserFieldLastLocation = "last_location"
	UserFieldDevices      = "devices"
	UserFieldUpdateTime   = "update_time"
)
